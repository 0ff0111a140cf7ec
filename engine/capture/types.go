package capture

import "fmt"

// DefaultPort is the port capture servers stream on.
const DefaultPort uint16 = 2101

// Joint is one joint of an actor's skeleton as the capture server describes it.
type Joint struct {
	Name string
	// Parent is the index of an earlier joint, or -1 for a root.
	Parent int32
	// Offset from the parent joint in capture units.
	Offset [3]float32
	// Orientation is the bind rotation packed as the x, y, z parts of a unit
	// quaternion.
	Orientation [3]float32
	Scale       [3]float32
}

// Actor is a tracked subject. A rigid body or tag is an actor with one joint.
type Actor struct {
	ID          int32
	Name        string
	Joints      []Joint
	BlendShapes []string
	MetaData    map[string]string
}

// JointTransform is the raw pose of one joint: rotation as Euler angles in
// degrees and translation in capture units.
type JointTransform struct {
	Rotation    [3]float32
	Translation [3]float32
}

// Pose is one frame of an actor.
type Pose struct {
	ActorID int32
	// Timestamp on the capture clock in microseconds.
	Timestamp             int64
	Transforms            []JointTransform
	BlendShapeActivations []float32
}

// ARTag is a single rigid marker.
type ARTag struct {
	ID        int32
	Transform JointTransform
}

type ActorMode int32

const (
	ActorScaling ActorMode = iota
	ActorTracking
	ActorStopped
	ActorDeleted
	ActorUnknown
	ActorStarted
)

func (m ActorMode) String() string {
	switch m {
	case ActorScaling:
		return "scaling"
	case ActorTracking:
		return "tracking"
	case ActorStopped:
		return "stopped"
	case ActorDeleted:
		return "deleted"
	case ActorStarted:
		return "started"
	case ActorUnknown:
		return "unknown"
	}
	return fmt.Sprintf("mode(%d)", int32(m))
}

// Ends reports whether the mode takes the actor out of the scene.
func (m ActorMode) Ends() bool {
	return m == ActorStopped || m == ActorDeleted
}

type ConnectionStatus int32

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// StreamFlags selects what the capture server streams.
type StreamFlags uint32

const (
	StreamNothing             StreamFlags = 0
	StreamGlobalPoses         StreamFlags = 0x0002
	StreamARTags              StreamFlags = 0x0008
	StreamOnlyRootTranslation StreamFlags = 0x0080
	StreamBlendShapes         StreamFlags = 0x0400
	StreamTCP                 StreamFlags = 0x1000
	StreamCompressed          StreamFlags = 0x4000
)

func (f StreamFlags) Has(flag StreamFlags) bool {
	return f&flag == flag
}
