// Package recorder tees everything pushed to a live-link client into a
// SQLite take database without slowing the pose path down.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
	"github.com/spaghettifunk/anima-livelink/engine/math"
	"github.com/spaghettifunk/anima-livelink/engine/retarget"
)

const (
	KindSkeletal = "skeletal"
	KindRigid    = "rigid"

	DefaultQueueSize = 256
)

// Bone is the stored form of one transform.
type Bone struct {
	Position [3]float32 `json:"p"`
	Rotation [4]float32 `json:"r"`
	Scale    [3]float32 `json:"s"`
}

func boneOf(t math.Transform) Bone {
	return Bone{
		Position: [3]float32{t.Position.X, t.Position.Y, t.Position.Z},
		Rotation: [4]float32{t.Rotation.X, t.Rotation.Y, t.Rotation.Z, t.Rotation.W},
		Scale:    [3]float32{t.Scale.X, t.Scale.Y, t.Scale.Z},
	}
}

// Recorder is a livelink.Client that forwards every call to the wrapped
// client and records it in the current take.
type Recorder struct {
	next   livelink.Client
	store  *Store
	jobs   *JobSystem
	takeID string
	now    func() float64

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// New starts a take in store. next may be nil to only record.
func New(ctx context.Context, store *Store, next livelink.Client, queueSize int) (*Recorder, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	takeID := uuid.NewString()
	if err := store.BeginTake(ctx, takeID); err != nil {
		return nil, fmt.Errorf("begin take: %w", err)
	}
	// sqlite has a single writer
	jobs, err := NewJobSystem(1, queueSize)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		next:   next,
		store:  store,
		jobs:   jobs,
		takeID: takeID,
		now:    core.PlatformSeconds,
	}, nil
}

func (r *Recorder) TakeID() string {
	return r.takeID
}

func (r *Recorder) submit(name string, fn func(ctx context.Context) error) {
	ok := r.jobs.TrySubmit(JobTask{
		Name:    name,
		OnStart: func() error { return fn(context.Background()) },
	})
	if !ok {
		r.dropped.Add(1)
	}
}

func (r *Recorder) PushSubjectStaticData(key livelink.SubjectKey, data livelink.StaticData) {
	if r.next != nil {
		r.next.PushSubjectStaticData(key, data)
	}

	at := r.now()
	r.submit("record subject "+key.Name, func(ctx context.Context) error {
		row := subjectRow{
			TakeID:       r.takeID,
			Source:       key.Source.String(),
			Name:         key.Name,
			Role:         data.Role().String(),
			RegisteredAt: at,
		}
		if sk, ok := data.(livelink.SkeletonStaticData); ok {
			var err error
			if row.Bones, err = encode(sk.BoneNames); err != nil {
				return err
			}
			if row.Parents, err = encode(sk.BoneParents); err != nil {
				return err
			}
			if row.Properties, err = encode(sk.PropertyNames); err != nil {
				return err
			}
		}
		return r.store.insertSubject(ctx, row)
	})
}

// PushSubjectFrameData forwards frame and queues it for writing. Encoding
// happens on the writer, so the caller only pays for the queue send.
func (r *Recorder) PushSubjectFrameData(key livelink.SubjectKey, frame livelink.FrameData) {
	if r.next != nil {
		r.next.PushSubjectFrameData(key, frame)
	}
	if frame.Frame == nil {
		return
	}

	r.submit("record frame "+key.Name, func(ctx context.Context) error {
		row, err := frameRowOf(r.takeID, key, frame)
		if err != nil {
			return err
		}
		if err := r.store.insertFrame(ctx, row); err != nil {
			return err
		}
		r.frames.Add(1)
		return nil
	})
}

func frameRowOf(takeID string, key livelink.SubjectKey, frame livelink.FrameData) (frameRow, error) {
	row := frameRow{
		TakeID:          takeID,
		Source:          key.Source.String(),
		Subject:         key.Name,
		WorldTime:       frame.WorldTime,
		FrameNumber:     frame.SceneTime.Time.FrameNumber,
		SubFrame:        frame.SceneTime.Time.SubFrame,
		RateNumerator:   frame.SceneTime.Rate.Numerator,
		RateDenominator: frame.SceneTime.Rate.Denominator,
	}

	var bones []Bone
	switch f := frame.Frame.(type) {
	case retarget.SkeletalFrame:
		row.Kind = KindSkeletal
		bones = make([]Bone, len(f.Bones))
		for i, b := range f.Bones {
			bones[i] = boneOf(b)
		}
		if f.BlendShapes != nil {
			weights, err := encode(f.BlendShapes)
			if err != nil {
				return row, err
			}
			row.BlendShapes = sql.NullString{String: weights, Valid: true}
		}
	case retarget.RigidFrame:
		row.Kind = KindRigid
		bones = []Bone{boneOf(f.Transform)}
	default:
		return row, fmt.Errorf("unsupported frame %T", frame.Frame)
	}

	var err error
	if row.Transforms, err = encode(bones); err != nil {
		return row, err
	}
	if row.MetaData, err = encode(frame.MetaData); err != nil {
		return row, err
	}
	return row, nil
}

func (r *Recorder) RemoveSubject(key livelink.SubjectKey) {
	if r.next != nil {
		r.next.RemoveSubject(key)
	}
	at := r.now()
	r.submit("record removal "+key.Name, func(ctx context.Context) error {
		return r.store.insertRemoval(ctx, r.takeID, key.Source.String(), key.Name, at)
	})
}

// Stats reports the writer state.
type Stats struct {
	TakeID        string   `json:"take_id"`
	FramesWritten uint64   `json:"frames_written"`
	Dropped       uint64   `json:"dropped"`
	Jobs          JobStats `json:"jobs"`
}

func (r *Recorder) Stats() Stats {
	return Stats{
		TakeID:        r.takeID,
		FramesWritten: r.frames.Load(),
		Dropped:       r.dropped.Load(),
		Jobs:          r.jobs.Stats(),
	}
}

// Subjects summarises the current take.
func (r *Recorder) Subjects(ctx context.Context) ([]SubjectSummary, error) {
	return r.store.Subjects(ctx, r.takeID)
}

// Close flushes the queued writes and ends the take. The store stays open.
func (r *Recorder) Close() error {
	if err := r.jobs.Shutdown(); err != nil {
		return err
	}
	return r.store.EndTake(context.Background(), r.takeID)
}

// encode fails on NaN or infinite values, which only a broken pose produces.
func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFrame(f *RecordedFrame, transforms string, blend sql.NullString, metadata string) error {
	if err := json.Unmarshal([]byte(transforms), &f.Transforms); err != nil {
		return fmt.Errorf("decode transforms: %w", err)
	}
	if blend.Valid {
		if err := json.Unmarshal([]byte(blend.String), &f.BlendShapes); err != nil {
			return fmt.Errorf("decode blend shapes: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(metadata), &f.MetaData); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}
