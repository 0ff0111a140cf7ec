package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const tolerance = 1e-5

func fromMgl(q mgl32.Quat) Quaternion {
	return Quaternion{q.V[0], q.V[1], q.V[2], q.W}
}

func TestNewQuatFromEulerZYXMatchesComposition(t *testing.T) {
	cases := []Vec3{
		{0, 0, 0},
		{90, 0, 0},
		{0, 90, 0},
		{0, 0, 90},
		{10, 20, 30},
		{-45, 170, 5},
		{359, -90, 12.5},
	}
	for _, deg := range cases {
		want := mgl32.QuatRotate(DegToRad(deg.Z), mgl32.Vec3{0, 0, 1}).
			Mul(mgl32.QuatRotate(DegToRad(deg.Y), mgl32.Vec3{0, 1, 0})).
			Mul(mgl32.QuatRotate(DegToRad(deg.X), mgl32.Vec3{1, 0, 0}))

		got := NewQuatFromEulerZYX(deg)
		if !got.Equivalent(fromMgl(want), tolerance) {
			t.Errorf("NewQuatFromEulerZYX(%v) = %v, want %v", deg, got, fromMgl(want))
		}
		if n := got.Normal(); n < 1-tolerance || n > 1+tolerance {
			t.Errorf("NewQuatFromEulerZYX(%v) not unit: |q| = %f", deg, n)
		}
	}
}

func TestQuaternionRotateMatchesMathgl(t *testing.T) {
	q := NewQuatFromEulerZYX(Vec3{30, -60, 125})
	mq := mgl32.Quat{W: q.W, V: mgl32.Vec3{q.X, q.Y, q.Z}}

	for _, v := range []Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {3, -2, 7.5}} {
		got := q.Rotate(v)
		w := mq.Rotate(mgl32.Vec3{v.X, v.Y, v.Z})
		if !got.Compare(Vec3{w[0], w[1], w[2]}, 1e-4) {
			t.Errorf("Rotate(%v) = %v, want %v", v, got, w)
		}
	}
}

func TestQuaternionInverseCancels(t *testing.T) {
	q := NewQuatFromEulerZYX(Vec3{12, 34, 56})
	if got := q.Inverse().Mul(q); !got.Equivalent(NewQuatIdentity(), tolerance) {
		t.Errorf("inverse(q)*q = %v, want identity", got)
	}
	if got := q.Mul(q.Inverse()); !got.Equivalent(NewQuatIdentity(), tolerance) {
		t.Errorf("q*inverse(q) = %v, want identity", got)
	}
}

func TestNewQuatFromPacked(t *testing.T) {
	tests := []struct {
		name   string
		packed Vec3
		want   Quaternion
	}{
		{"identity", Vec3{}, NewQuatIdentity()},
		{"quarter about x", Vec3{K_SQRT_ONE_OVER_TWO, 0, 0}, Quaternion{K_SQRT_ONE_OVER_TWO, 0, 0, K_SQRT_ONE_OVER_TWO}},
		{"half turn about y", Vec3{0, 1, 0}, Quaternion{0, 1, 0, 0}},
		// Slightly denormalised input must clamp to w = 0 instead of NaN.
		{"overflow clamps", Vec3{0, 0, 1.0001}, Quaternion{0, 0, 1.0001, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewQuatFromPacked(tt.packed)
			if !got.Compare(tt.want, tolerance) {
				t.Errorf("NewQuatFromPacked(%v) = %v, want %v", tt.packed, got, tt.want)
			}
		})
	}
}

// A bind rotation whose true scalar part is negative loses its sign when
// packed; the reconstruction yields the other hemisphere.
func TestNewQuatFromPackedDropsNegativeScalar(t *testing.T) {
	orig := NewQuatFromAxisAngle(Vec3{0, 0, 1}, DegToRad(270), false)
	if orig.W >= 0 {
		t.Fatalf("expected a negative scalar part, got %v", orig)
	}
	got := NewQuatFromPacked(Vec3{orig.X, orig.Y, orig.Z})
	if got.W < 0 {
		t.Errorf("reconstructed scalar part = %f, want >= 0", got.W)
	}
	if got.Equivalent(orig, tolerance) {
		t.Errorf("reconstruction unexpectedly preserved %v", orig)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Errorf("Clamp(5, 0, 3) = %d", got)
	}
	if got := Clamp(float32(-1), 0, 1); got != 0 {
		t.Errorf("Clamp(-1, 0, 1) = %f", got)
	}
	if got := Clamp(0.5, 0, 1); got != 0.5 {
		t.Errorf("Clamp(0.5, 0, 1) = %f", got)
	}
	if got := Saturate(float32(1.5)); got != 1 {
		t.Errorf("Saturate(1.5) = %f", got)
	}
}

func TestTransformCompareTreatsNegatedRotationAsEqual(t *testing.T) {
	a := TransformFromRotation(NewQuatIdentity())
	b := TransformFromRotation(Quaternion{0, 0, 0, -1})
	if !a.Compare(b, tolerance) {
		t.Error("identity and negated identity should compare equal")
	}
	if a.Compare(TransformFromPosition(Vec3{1, 0, 0}), tolerance) {
		t.Error("different positions should not compare equal")
	}
}
