package livelink

import "testing"

func TestDirectoryIndices(t *testing.T) {
	d := NewDirectory()

	if got := d.Acquire("10.0.0.1:2101"); got != 1 {
		t.Fatalf("first index = %d", got)
	}
	if got := d.Acquire("10.0.0.1:2101"); got != 2 {
		t.Fatalf("second index = %d", got)
	}
	if got := d.Acquire("10.0.0.2:2101"); got != 1 {
		t.Fatalf("other host index = %d", got)
	}
	if d.Total() != 3 {
		t.Fatalf("total = %d", d.Total())
	}

	if err := d.Release("10.0.0.1:2101", 1); err != nil {
		t.Fatal(err)
	}
	if got := d.Acquire("10.0.0.1:2101"); got != 1 {
		t.Fatalf("reused index = %d, want 1", got)
	}
	if err := d.Release("10.0.0.3:2101", 1); err == nil {
		t.Fatal("release on unknown host succeeded")
	}
	if err := d.Release("10.0.0.2:2101", 2); err == nil {
		t.Fatal("release of free index succeeded")
	}
}

func TestDirectoryPrefix(t *testing.T) {
	d := NewDirectory()
	const ep = "10.0.0.1:2101"

	first := d.Acquire(ep)
	if p := d.Prefix(ep, "studio", first); p != "" {
		t.Fatalf("lone source prefix = %q, want none", p)
	}
	second := d.Acquire(ep)

	tests := []struct {
		index int
		want  string
	}{
		{first, "studio:"},
		{second, "studio{2}:"},
	}
	for _, tt := range tests {
		if got := d.Prefix(ep, "studio", tt.index); got != tt.want {
			t.Errorf("Prefix(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}

	if err := d.Release(ep, second); err != nil {
		t.Fatal(err)
	}
	if p := d.Prefix(ep, "studio", first); p != "" {
		t.Fatalf("prefix after release = %q, want none", p)
	}
	if d.Count(ep) != 1 {
		t.Fatalf("count = %d", d.Count(ep))
	}
}
