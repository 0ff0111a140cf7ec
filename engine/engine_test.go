package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-livelink/engine/capture/sim"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
)

type oneHost struct{}

func (oneHost) LookupHost(context.Context, string) ([]string, error) {
	return []string{"10.1.1.1"}, nil
}

type countingClient struct {
	mu     sync.Mutex
	static map[string]bool
	frames int
}

func (c *countingClient) PushSubjectStaticData(key livelink.SubjectKey, _ livelink.StaticData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.static[key.Name] = true
}

func (c *countingClient) PushSubjectFrameData(livelink.SubjectKey, livelink.FrameData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
}

func (c *countingClient) RemoveSubject(key livelink.SubjectKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.static, key.Name)
}

func (c *countingClient) has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.static[name]
}

func newTestEngine(t *testing.T, update Update) (*Engine, *countingClient) {
	t.Helper()
	client := &countingClient{static: make(map[string]bool)}
	e, err := New(&Game{
		ApplicationConfig: &ApplicationConfig{Name: "test", TickRate: 200},
		Client:            client,
		FnUpdate:          update,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	return e, client
}

func addSimSource(t *testing.T, e *Engine, host string) (*livelink.Source, *sim.Server) {
	t.Helper()
	srv := sim.New()
	src, err := livelink.NewSource(context.Background(), livelink.NewDirectory(), srv.Dialer(),
		livelink.Options{Host: host, Resolver: oneHost{}})
	if err != nil {
		t.Fatal(err)
	}
	e.AddSource(src)
	return src, srv
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(&Game{}); err == nil {
		t.Fatal("engine created without application config")
	}
}

func TestTickRegistersActors(t *testing.T) {
	var ticks int
	e, client := newTestEngine(t, func(float64) error { ticks++; return nil })
	_, srv := addSimSource(t, e, "studio")

	srv.AddActor(sim.Human(1, "Alice"), sim.Rest, 0)
	if client.has("Alice") {
		t.Fatal("registered before tick")
	}
	if err := e.Tick(0.01); err != nil {
		t.Fatal(err)
	}
	if !client.has("Alice") {
		t.Fatal("actor not registered by tick")
	}
	srv.Step()
	if client.frames != 1 {
		t.Fatalf("frames = %d", client.frames)
	}
	if ticks != 1 {
		t.Fatalf("host updated %d times", ticks)
	}
}

func TestDoRunsOnNextTick(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ran := false
	if err := e.Do(func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Fatal("command ran before tick")
	}
	if err := e.Tick(0); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("command did not run")
	}
}

func TestDoRejectsWhenFull(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	for i := 0; i < commandQueueSize; i++ {
		if err := e.Do(func() {}); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
	}
	if err := e.Do(func() {}); !errors.Is(err, ErrCommandQueueFull) {
		t.Fatalf("Do on full queue = %v", err)
	}
}

func TestRemoveSource(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	src, _ := addSimSource(t, e, "studio")
	addSimSource(t, e, "stage")

	if !e.RemoveSource(src.GUID()) {
		t.Fatal("source not found")
	}
	if e.RemoveSource(src.GUID()) {
		t.Fatal("source removed twice")
	}
	if got := len(e.Sources()); got != 1 {
		t.Fatalf("sources = %d", got)
	}
	if src.IsValid() {
		t.Fatal("removed source still valid")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	ticked := make(chan struct{}, 1)
	e, _ := newTestEngine(t, func(float64) error {
		select {
		case ticked <- struct{}{}:
		default:
		}
		return nil
	})
	src, _ := addSimSource(t, e, "studio")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never ticked")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if e.Stage() != EngineStageStopped {
		t.Fatalf("stage = %s", e.Stage())
	}
	if src.IsValid() {
		t.Fatal("source still valid after shutdown")
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestRunStopsOnUpdateError(t *testing.T) {
	boom := errors.New("boom")
	e, _ := newTestEngine(t, func(float64) error { return boom })
	if err := e.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run = %v", err)
	}
}
