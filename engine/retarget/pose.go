// Package retarget converts captured poses into the local, left-handed,
// Z-up bone transforms the engine animates with. Everything here is a pure
// function of its inputs and safe to call from any goroutine.
package retarget

import (
	"fmt"

	"github.com/spaghettifunk/anima-livelink/engine/capture"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/math"
	"github.com/spaghettifunk/anima-livelink/engine/skeleton"
)

// UnitScale converts capture millimetres to engine centimetres.
const UnitScale float32 = 0.1

// layFlat rotates the capture's Y-up frame into the engine's Z-up frame.
var layFlat = math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), math.DegToRad(90), false)

// Frame is the retargeted output of one pose: a SkeletalFrame for skeletons
// with more than one joint, a RigidFrame otherwise.
type Frame interface {
	isFrame()
}

type SkeletalFrame struct {
	// Bones in skeleton order, preceded by the identity root when the
	// skeleton has a synthetic root.
	Bones []math.Transform
	// BlendShapes follows the skeleton's channel list; nil when the pose
	// carries no activations.
	BlendShapes []float32
}

type RigidFrame struct {
	Transform math.Transform
}

func (SkeletalFrame) isFrame() {}
func (RigidFrame) isFrame()    {}

// Transform retargets pose onto s. A parent index that does not point at an
// already processed joint aborts the whole pose with ErrCorruptSkeleton.
func Transform(s *skeleton.Skeleton, pose capture.Pose) (Frame, error) {
	n := len(s.Joints)
	if len(pose.Transforms) != n {
		return nil, fmt.Errorf("actor %x: %d transforms for %d joints: %w",
			s.ActorID, len(pose.Transforms), n, core.ErrJointCountMismatch)
	}

	globalPose := make([]math.Quaternion, 0, n)
	globalScale := make([]float32, 0, n)
	bones := make([]math.Transform, 0, n+1)
	if s.SyntheticRoot {
		bones = append(bones, math.TransformCreate())
	}

	for i, joint := range s.Joints {
		raw := pose.Transforms[i]
		poseRot := math.NewQuatFromEulerZYX(math.NewVec3FromArray(raw.Rotation))
		globalPose = append(globalPose, poseRot)

		var rot math.Quaternion
		var trans math.Vec3
		parentScale := float32(1)

		if joint.Parent < 0 {
			rot = layFlat.Mul(poseRot).Mul(joint.BindRotation)
			trans = layFlat.Rotate(math.NewVec3FromArray(raw.Translation).MulScalar(UnitScale))
		} else {
			if joint.Parent >= i {
				return nil, fmt.Errorf("actor %x %s: parent of joint %d is invalid (%d): %w",
					s.ActorID, s.Name, i, joint.Parent, core.ErrCorruptSkeleton)
			}
			poseRot = globalPose[joint.Parent].Inverse().Mul(poseRot)

			parentScale = globalScale[joint.Parent]
			invParentBind := s.Joints[joint.Parent].BindRotation.Inverse()
			trans = invParentBind.Rotate(joint.Offset.MulScalar(UnitScale / parentScale))

			relBind := invParentBind.Mul(joint.BindRotation)
			rot = relBind.
				Mul(joint.BindRotation.Inverse()).
				Mul(poseRot).
				Mul(joint.BindRotation)
		}
		globalScale = append(globalScale, parentScale*joint.Scale)

		bone := HandednessCorrect(math.Transform{
			Position: trans,
			Rotation: rot,
			Scale:    math.NewVec3(joint.Scale, joint.Scale, joint.Scale),
		})
		if n == 1 {
			return RigidFrame{Transform: bone}, nil
		}
		bones = append(bones, bone)
	}

	return SkeletalFrame{
		Bones:       bones,
		BlendShapes: blendShapeWeights(s, pose.BlendShapeActivations),
	}, nil
}

// TransformTag converts the raw transform of an AR tag. Tags have no bind
// pose and no scale.
func TransformTag(raw capture.JointTransform) math.Transform {
	poseRot := math.NewQuatFromEulerZYX(math.NewVec3FromArray(raw.Rotation))
	return HandednessCorrect(math.Transform{
		Position: layFlat.Rotate(math.NewVec3FromArray(raw.Translation).MulScalar(UnitScale)),
		Rotation: layFlat.Mul(poseRot),
		Scale:    math.NewVec3One(),
	})
}

// HandednessCorrect mirrors a right-handed transform into the engine's
// left-handed space. Applying it twice is the identity.
func HandednessCorrect(t math.Transform) math.Transform {
	t.Rotation.Y = -t.Rotation.Y
	t.Rotation.W = -t.Rotation.W
	t.Position.Y = -t.Position.Y
	return t
}

func blendShapeWeights(s *skeleton.Skeleton, activations []float32) []float32 {
	if len(activations) == 0 || len(s.BlendShapes) == 0 {
		return nil
	}
	weights := make([]float32, len(s.BlendShapes))
	copy(weights, activations)
	return weights
}
