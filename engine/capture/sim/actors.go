package sim

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-livelink/engine/capture"
)

// Rest holds every joint at its bind pose with the root at the origin.
func Rest(_ int64, actor capture.Actor) []capture.JointTransform {
	return make([]capture.JointTransform, len(actor.Joints))
}

// Idle sways the root and bends every other joint slightly.
func Idle(frame int64, actor capture.Actor) []capture.JointTransform {
	out := make([]capture.JointTransform, len(actor.Joints))
	phase := float64(frame) / 60.0
	for i := range out {
		swing := float32(5 * math.Sin(phase*2*math.Pi*0.5+float64(i)))
		out[i].Rotation = [3]float32{swing, swing * 0.5, 0}
	}
	if len(out) > 0 {
		out[0].Translation = [3]float32{
			float32(100 * math.Sin(phase)),
			950,
			float32(100 * math.Cos(phase)),
		}
	}
	return out
}

func joint(name string, parent int32, offset [3]float32) capture.Joint {
	return capture.Joint{
		Name:   name,
		Parent: parent,
		Offset: offset,
		Scale:  [3]float32{1, 1, 1},
	}
}

// Human is a small humanoid rooted at the hips, with two blend shapes.
func Human(id int32, name string) capture.Actor {
	return capture.Actor{
		ID:   id,
		Name: name,
		Joints: []capture.Joint{
			joint("Hips", -1, [3]float32{0, 0, 0}),
			joint("Spine", 0, [3]float32{0, 100, 0}),
			joint("Spine1", 1, [3]float32{0, 120, 0}),
			joint("Neck", 2, [3]float32{0, 200, 0}),
			joint("Head", 3, [3]float32{0, 100, 0}),
			joint("LeftUpLeg", 0, [3]float32{90, 0, 0}),
			joint("LeftLeg", 5, [3]float32{0, -420, 0}),
			joint("RightUpLeg", 0, [3]float32{-90, 0, 0}),
			joint("RightLeg", 7, [3]float32{0, -420, 0}),
		},
		BlendShapes: []string{"face.jawOpen", "face.smile"},
		MetaData:    map[string]string{"Source": "sim"},
	}
}

// RigidBody is a prop tracked as a single transform.
func RigidBody(id int32, name string) capture.Actor {
	return capture.Actor{
		ID:     id,
		Name:   name,
		Joints: []capture.Joint{joint(name, -1, [3]float32{})},
	}
}

// Populate fills s with humans named "Performer N", rigid bodies named
// "Prop N" and AR tags laid out one meter apart along x. Actor ids follow
// that order starting at 1.
func Populate(s *Server, humans, rigidBodies int, tags []int32) {
	id := int32(1)
	for i := 1; i <= humans; i++ {
		s.AddActor(Human(id, fmt.Sprintf("Performer %d", i)), Idle, 0)
		id++
	}
	for i := 1; i <= rigidBodies; i++ {
		s.AddActor(RigidBody(id, fmt.Sprintf("Prop %d", i)), Idle, 0)
		id++
	}
	if len(tags) == 0 {
		return
	}
	out := make([]capture.ARTag, len(tags))
	for i, tag := range tags {
		out[i] = capture.ARTag{
			ID:        tag,
			Transform: capture.JointTransform{Translation: [3]float32{float32(i) * 1000, 0, 0}},
		}
	}
	s.SetTags(out)
}
