package retarget

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/anima-livelink/engine/capture"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/math"
	"github.com/spaghettifunk/anima-livelink/engine/skeleton"
)

const tolerance = 1e-4

func mustSkeleton(t *testing.T, actor capture.Actor) *skeleton.Skeleton {
	t.Helper()
	s, err := skeleton.FromActor(actor)
	if err != nil {
		t.Fatalf("FromActor() error = %v", err)
	}
	return s
}

func unit() [3]float32 { return [3]float32{1, 1, 1} }

func zeroPose(n int) capture.Pose {
	return capture.Pose{Transforms: make([]capture.JointTransform, n)}
}

func skeletal(t *testing.T, f Frame) SkeletalFrame {
	t.Helper()
	sf, ok := f.(SkeletalFrame)
	if !ok {
		t.Fatalf("frame is %T, want SkeletalFrame", f)
	}
	return sf
}

func TestTransformHipsSpineRestPose(t *testing.T) {
	s := mustSkeleton(t, capture.Actor{
		ID:   1,
		Name: "alice",
		Joints: []capture.Joint{
			{Name: "Hips", Parent: -1, Scale: unit()},
			{Name: "Spine", Parent: 0, Scale: unit()},
		},
	})

	f, err := Transform(s, zeroPose(2))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	bones := skeletal(t, f).Bones
	if len(bones) != 3 {
		t.Fatalf("bones = %d, want 3 (Root, Hips, Spine)", len(bones))
	}

	identity := math.TransformCreate()
	if !bones[0].Compare(identity, tolerance) {
		t.Errorf("Root = %+v, want identity", bones[0])
	}
	// The hips only carry the fixed Y-up to Z-up conversion.
	hips := HandednessCorrect(math.TransformFromRotation(layFlat))
	if !bones[1].Compare(hips, tolerance) {
		t.Errorf("Hips = %+v, want %+v", bones[1], hips)
	}
	if !bones[2].Compare(identity, tolerance) {
		t.Errorf("Spine = %+v, want identity", bones[2])
	}
}

func TestTransformZeroPoseYieldsRelativeBind(t *testing.T) {
	parentBind := math.NewQuatFromEulerZYX(math.NewVec3(0, 30, 0))
	childBind := math.NewQuatFromEulerZYX(math.NewVec3(20, 0, 10))
	s := mustSkeleton(t, capture.Actor{
		Joints: []capture.Joint{
			{Name: "Pelvis", Parent: -1, Scale: unit(), Orientation: [3]float32{parentBind.X, parentBind.Y, parentBind.Z}},
			{Name: "Spine", Parent: 0, Scale: unit(), Orientation: [3]float32{childBind.X, childBind.Y, childBind.Z}},
			{Name: "Chest", Parent: 1, Scale: unit()},
		},
	})

	f, err := Transform(s, zeroPose(3))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	bones := skeletal(t, f).Bones

	// bind pose cancels itself: what remains is the rest rotation relative
	// to the parent
	wantSpine := HandednessCorrect(math.TransformFromRotation(parentBind.Inverse().Mul(childBind)))
	if !bones[1].Rotation.Equivalent(wantSpine.Rotation, tolerance) {
		t.Errorf("Spine rotation = %v, want %v", bones[1].Rotation, wantSpine.Rotation)
	}
	wantChest := HandednessCorrect(math.TransformFromRotation(childBind.Inverse()))
	if !bones[2].Rotation.Equivalent(wantChest.Rotation, tolerance) {
		t.Errorf("Chest rotation = %v, want %v", bones[2].Rotation, wantChest.Rotation)
	}
}

func TestTransformZeroPoseIdentityBindIsIdentity(t *testing.T) {
	joints := []capture.Joint{{Name: "Pelvis", Parent: -1, Scale: unit()}}
	for i := int32(1); i < 6; i++ {
		joints = append(joints, capture.Joint{Name: "j", Parent: (i - 1) / 2, Scale: unit(), Offset: [3]float32{0, 10, 0}})
	}
	s := mustSkeleton(t, capture.Actor{Joints: joints})

	f, err := Transform(s, zeroPose(len(joints)))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	for i, b := range skeletal(t, f).Bones[1:] {
		if !b.Rotation.Equivalent(math.NewQuatIdentity(), tolerance) {
			t.Errorf("bone %d rotation = %v, want identity", i+1, b.Rotation)
		}
	}
}

func TestTransformChildRotationSandwich(t *testing.T) {
	bind := math.NewQuatFromEulerZYX(math.NewVec3(0, 0, 45))
	s := mustSkeleton(t, capture.Actor{
		Joints: []capture.Joint{
			{Name: "Pelvis", Parent: -1, Scale: unit()},
			{Name: "Spine", Parent: 0, Scale: unit(), Orientation: [3]float32{bind.X, bind.Y, bind.Z}},
		},
	})
	pose := zeroPose(2)
	pose.Transforms[1].Rotation = [3]float32{30, 0, 0}

	f, err := Transform(s, pose)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	// parent bind is identity: relBind * inv(bind) * R * bind == R * bind
	r := mgl32.QuatRotate(math.DegToRad(30), mgl32.Vec3{1, 0, 0})
	b := mgl32.Quat{W: bind.W, V: mgl32.Vec3{bind.X, bind.Y, bind.Z}}
	w := r.Mul(b)
	want := HandednessCorrect(math.TransformFromRotation(math.Quaternion{w.V[0], w.V[1], w.V[2], w.W}))
	if got := skeletal(t, f).Bones[1].Rotation; !got.Equivalent(want.Rotation, tolerance) {
		t.Errorf("Spine rotation = %v, want %v", got, want.Rotation)
	}
}

func TestTransformRootTranslationIsLinear(t *testing.T) {
	s := mustSkeleton(t, capture.Actor{
		Joints: []capture.Joint{
			{Name: "Pelvis", Parent: -1, Scale: unit()},
			{Name: "Spine", Parent: 0, Scale: unit()},
		},
	})

	rootAt := func(tr, rot [3]float32) math.Vec3 {
		p := zeroPose(2)
		p.Transforms[0] = capture.JointTransform{Rotation: rot, Translation: tr}
		f, err := Transform(s, p)
		if err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
		return skeletal(t, f).Bones[0].Position
	}

	tr := [3]float32{120, 950, -40}
	once := rootAt(tr, [3]float32{})
	twice := rootAt([3]float32{2 * tr[0], 2 * tr[1], 2 * tr[2]}, [3]float32{10, 80, -30})
	if !twice.Compare(once.MulScalar(2), tolerance) {
		t.Errorf("doubled translation = %v, want %v", twice, once.MulScalar(2))
	}

	// Y-up millimetres become Z-up, left-handed centimetres.
	want := math.NewVec3(12, -4, 95)
	if !once.Compare(want, tolerance) {
		t.Errorf("root position = %v, want %v", once, want)
	}
}

func TestTransformOffsetCancelsParentScale(t *testing.T) {
	s := mustSkeleton(t, capture.Actor{
		Joints: []capture.Joint{
			{Name: "Pelvis", Parent: -1, Scale: [3]float32{2, 2, 2}},
			{Name: "Spine", Parent: 0, Scale: [3]float32{1.5, 1.5, 1.5}, Offset: [3]float32{100, 0, 0}},
			{Name: "Chest", Parent: 1, Scale: unit(), Offset: [3]float32{0, 0, 300}},
		},
	})
	f, err := Transform(s, zeroPose(3))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	bones := skeletal(t, f).Bones
	if want := math.NewVec3(5, 0, 0); !bones[1].Position.Compare(want, tolerance) {
		t.Errorf("Spine position = %v, want %v", bones[1].Position, want)
	}
	if want := math.NewVec3(0, 0, 10); !bones[2].Position.Compare(want, tolerance) {
		t.Errorf("Chest position = %v, want %v", bones[2].Position, want)
	}
	if want := math.NewVec3(1.5, 1.5, 1.5); !bones[1].Scale.Compare(want, tolerance) {
		t.Errorf("Spine scale = %v, want %v", bones[1].Scale, want)
	}
}

func TestHandednessCorrectIsInvolution(t *testing.T) {
	in := math.Transform{
		Position: math.NewVec3(1, -2, 3),
		Rotation: math.NewQuatFromEulerZYX(math.NewVec3(11, 22, 33)),
		Scale:    math.NewVec3One(),
	}
	once := HandednessCorrect(in)
	if once.Position.Y != 2 || once.Rotation.Y != -in.Rotation.Y || once.Rotation.W != -in.Rotation.W {
		t.Errorf("HandednessCorrect(%+v) = %+v", in, once)
	}
	if once.Rotation.X != in.Rotation.X || once.Rotation.Z != in.Rotation.Z {
		t.Errorf("x/z rotation components changed: %+v", once.Rotation)
	}
	if twice := HandednessCorrect(once); twice != in {
		t.Errorf("applying twice = %+v, want %+v", twice, in)
	}
}

func TestTransformSingleJointIsRigid(t *testing.T) {
	inputs := []capture.Actor{
		{Joints: []capture.Joint{{Name: "prop", Parent: -1}}},
		{Joints: []capture.Joint{{Name: "Hips", Parent: -1}}, BlendShapes: []string{"a"}},
	}
	for _, a := range inputs {
		s := mustSkeleton(t, a)
		p := zeroPose(1)
		p.Transforms[0].Translation = [3]float32{10, 20, 30}
		p.BlendShapeActivations = []float32{0.5}

		f, err := Transform(s, p)
		if err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
		rf, ok := f.(RigidFrame)
		if !ok {
			t.Fatalf("frame is %T, want RigidFrame", f)
		}
		if want := math.NewVec3(1, 3, 2); !rf.Transform.Position.Compare(want, tolerance) {
			t.Errorf("rigid position = %v, want %v", rf.Transform.Position, want)
		}
	}
}

func TestTransformBlendShapes(t *testing.T) {
	a := capture.Actor{
		Joints: []capture.Joint{
			{Name: "Hips", Parent: -1},
			{Name: "Head", Parent: 0},
		},
		BlendShapes: []string{"jaw", "smile", "blink"},
	}
	s := mustSkeleton(t, a)

	f, err := Transform(s, zeroPose(2))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if w := skeletal(t, f).BlendShapes; w != nil {
		t.Errorf("BlendShapes = %v, want nil without activations", w)
	}

	p := zeroPose(2)
	p.BlendShapeActivations = []float32{0.25, 0.75}
	f, err = Transform(s, p)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	w := skeletal(t, f).BlendShapes
	if len(w) != 3 || w[0] != 0.25 || w[1] != 0.75 || w[2] != 0 {
		t.Errorf("BlendShapes = %v, want [0.25 0.75 0]", w)
	}
}

func TestTransformErrors(t *testing.T) {
	corrupt := &skeleton.Skeleton{
		Name: "broken",
		Joints: []skeleton.Joint{
			{Name: "a", Parent: -1, Scale: 1, BindRotation: math.NewQuatIdentity()},
			{Name: "b", Parent: 2, Scale: 1, BindRotation: math.NewQuatIdentity()},
			{Name: "c", Parent: 0, Scale: 1, BindRotation: math.NewQuatIdentity()},
		},
	}
	if _, err := Transform(corrupt, zeroPose(3)); !errors.Is(err, core.ErrCorruptSkeleton) {
		t.Errorf("corrupt skeleton error = %v, want ErrCorruptSkeleton", err)
	}

	s := mustSkeleton(t, capture.Actor{Joints: []capture.Joint{{Name: "a", Parent: -1}, {Name: "b", Parent: 0}}})
	if _, err := Transform(s, zeroPose(3)); !errors.Is(err, core.ErrJointCountMismatch) {
		t.Errorf("mismatch error = %v, want ErrJointCountMismatch", err)
	}
}

func TestTransformTag(t *testing.T) {
	got := TransformTag(capture.JointTransform{Translation: [3]float32{0, 0, 100}})
	// +Z in capture space lays flat onto -Y, then flips to +Y.
	if want := math.NewVec3(0, 10, 0); !got.Position.Compare(want, tolerance) {
		t.Errorf("tag position = %v, want %v", got.Position, want)
	}
	if !got.Scale.Compare(math.NewVec3One(), tolerance) {
		t.Errorf("tag scale = %v, want one", got.Scale)
	}
}
