// Package skeleton holds the immutable per-actor skeleton model built once
// when an actor is first resolved.
package skeleton

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spaghettifunk/anima-livelink/engine/capture"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/math"
)

const (
	// HipsName marks a skeleton rooted at the hips. Such skeletons get a
	// synthetic root bone in front of the hips.
	HipsName = "Hips"
	RootName = "Root"
)

type Joint struct {
	Name string
	// Parent is the index of an earlier joint or -1.
	Parent int
	// Offset from the parent in capture units.
	Offset math.Vec3
	// BindRotation is the global rest orientation.
	BindRotation math.Quaternion
	Scale        float32
}

// Skeleton is never modified after FromActor returns, so it can be shared
// with the capture thread without locking.
type Skeleton struct {
	ActorID     int32
	Name        string
	Joints      []Joint
	BlendShapes []string
	MetaData    map[string]string
	// SyntheticRoot is set when the first joint is the hips.
	SyntheticRoot bool
}

// FromActor builds the model of actor. Joints must be topologically ordered.
func FromActor(actor capture.Actor) (*Skeleton, error) {
	if len(actor.Joints) == 0 {
		return nil, fmt.Errorf("actor %x %s: %w", actor.ID, actor.Name, core.ErrEmptySkeleton)
	}

	s := &Skeleton{
		ActorID:     actor.ID,
		Name:        actor.Name,
		Joints:      make([]Joint, len(actor.Joints)),
		BlendShapes: make([]string, len(actor.BlendShapes)),
		MetaData:    maps.Clone(actor.MetaData),
	}
	for i, j := range actor.Joints {
		parent := int(j.Parent)
		if parent >= i {
			return nil, fmt.Errorf("actor %x %s: joint %d %q has parent %d: %w",
				actor.ID, actor.Name, i, j.Name, parent, core.ErrCorruptSkeleton)
		}
		if parent < 0 {
			parent = -1
		}
		scale := j.Scale[0]
		if scale == 0 {
			// unset
			scale = 1
		}
		s.Joints[i] = Joint{
			Name:         sanitize(j.Name),
			Parent:       parent,
			Offset:       math.NewVec3FromArray(j.Offset),
			BindRotation: math.NewQuatFromPacked(math.NewVec3FromArray(j.Orientation)),
			Scale:        scale,
		}
	}
	for i, name := range actor.BlendShapes {
		s.BlendShapes[i] = sanitize(name)
	}
	s.SyntheticRoot = len(s.Joints) > 1 && actor.Joints[0].Name == HipsName
	return s, nil
}

// Tag is the one-joint model used for AR tags.
func Tag(id int32) *Skeleton {
	return &Skeleton{
		ActorID: id,
		Name:    fmt.Sprintf("ARTag %d", id),
		Joints: []Joint{{
			Name:         "ARTag",
			Parent:       -1,
			BindRotation: math.NewQuatIdentity(),
			Scale:        1,
		}},
	}
}

// IsRigid reports whether the skeleton is a single rigid transform.
func (s *Skeleton) IsRigid() bool {
	return len(s.Joints) == 1
}

// BoneNames lists the bone names in output order, the synthetic root first
// when present.
func (s *Skeleton) BoneNames() []string {
	names := make([]string, 0, len(s.Joints)+1)
	if s.SyntheticRoot {
		names = append(names, RootName)
	}
	for _, j := range s.Joints {
		names = append(names, j.Name)
	}
	return names
}

// BoneParents lists the parent of every bone in output order. Indices are
// shifted by one when the synthetic root is present, so the hips hang off it.
func (s *Skeleton) BoneParents() []int {
	parents := make([]int, 0, len(s.Joints)+1)
	offset := 0
	if s.SyntheticRoot {
		parents = append(parents, -1)
		offset = 1
	}
	for _, j := range s.Joints {
		parents = append(parents, j.Parent+offset)
	}
	return parents
}

// engine bone and curve names may not contain dots
func sanitize(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
