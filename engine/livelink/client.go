package livelink

import (
	"fmt"
	m "math"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-livelink/engine/retarget"
)

type Role uint8

const (
	RoleAnimation Role = iota
	RoleTransform
)

func (r Role) String() string {
	switch r {
	case RoleAnimation:
		return "animation"
	case RoleTransform:
		return "transform"
	}
	return "unknown"
}

// SubjectKey addresses one animated subject on the engine side.
type SubjectKey struct {
	Source uuid.UUID
	Name   string
}

func (k SubjectKey) String() string {
	return fmt.Sprintf("%s/%s", k.Source, k.Name)
}

// StaticData describes a subject once, at registration.
type StaticData interface {
	Role() Role
}

type SkeletonStaticData struct {
	BoneNames   []string
	BoneParents []int
	// PropertyNames are the blend shape channels, in the order of
	// SkeletalFrame.BlendShapes.
	PropertyNames []string
}

type TransformStaticData struct {
	ScaleSupported bool
}

func (SkeletonStaticData) Role() Role  { return RoleAnimation }
func (TransformStaticData) Role() Role { return RoleTransform }

// FrameRate is a frame rate as a fraction.
type FrameRate struct {
	Numerator   int32
	Denominator int32
}

func (r FrameRate) IsValid() bool {
	return r.Numerator > 0 && r.Denominator > 0
}

func (r FrameRate) AsDecimal() float64 {
	if !r.IsValid() {
		return 0
	}
	return float64(r.Numerator) / float64(r.Denominator)
}

// FrameTime is a frame number plus the fraction into the next frame.
type FrameTime struct {
	FrameNumber int32
	SubFrame    float32
}

// AsFrameTime converts seconds into a frame time at rate r.
func (r FrameRate) AsFrameTime(seconds float64) FrameTime {
	frames := seconds * r.AsDecimal()
	whole := m.Floor(frames)
	return FrameTime{
		FrameNumber: int32(whole),
		SubFrame:    float32(frames - whole),
	}
}

type QualifiedFrameTime struct {
	Time FrameTime
	Rate FrameRate
}

// Metadata keys every pose frame carries.
const (
	MetaTimestampInSeconds = "TimestampInSeconds"
	MetaFrameRate          = "FrameRate"
	MetaFrameNumber        = "FrameNumber"
)

type FrameData struct {
	// WorldTime is the host's clock in seconds when the frame was built.
	WorldTime float64
	SceneTime QualifiedFrameTime
	MetaData  map[string]string
	Frame     retarget.Frame
}

// Client is the engine side of the bridge. PushSubjectFrameData may be called
// from any goroutine; PushSubjectStaticData and RemoveSubject are only called
// from the goroutine that runs Source.Update.
type Client interface {
	PushSubjectStaticData(key SubjectKey, data StaticData)
	PushSubjectFrameData(key SubjectKey, frame FrameData)
	RemoveSubject(key SubjectKey)
}
