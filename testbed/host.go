package testbed

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-livelink/engine/api"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
)

type subject struct {
	static livelink.StaticData
	latest livelink.FrameData
	frames uint64
}

// Host is an in-memory livelink.Client. It keeps the static data and the
// latest frame of every subject, the way an engine's live-link client would.
type Host struct {
	mu       sync.RWMutex
	subjects map[livelink.SubjectKey]*subject
	removed  uint64
	orphans  uint64
}

func NewHost() *Host {
	return &Host{subjects: make(map[livelink.SubjectKey]*subject)}
}

func (h *Host) PushSubjectStaticData(key livelink.SubjectKey, data livelink.StaticData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subjects[key] = &subject{static: data}
}

// PushSubjectFrameData drops frames for subjects that have no static data.
func (h *Host) PushSubjectFrameData(key livelink.SubjectKey, frame livelink.FrameData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subjects[key]
	if !ok {
		h.orphans++
		return
	}
	s.latest = frame
	s.frames++
}

func (h *Host) RemoveSubject(key livelink.SubjectKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subjects[key]; ok {
		delete(h.subjects, key)
		h.removed++
	}
}

// Frame returns the latest frame of key.
func (h *Host) Frame(key livelink.SubjectKey) (livelink.FrameData, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subjects[key]
	if !ok || s.frames == 0 {
		return livelink.FrameData{}, false
	}
	return s.latest, true
}

func (h *Host) StaticData(key livelink.SubjectKey) (livelink.StaticData, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subjects[key]
	if !ok {
		return nil, false
	}
	return s.static, true
}

// Keys lists the registered subjects ordered by name.
func (h *Host) Keys() []livelink.SubjectKey {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.SortedFunc(maps.Keys(h.subjects), func(a, b livelink.SubjectKey) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// Subjects implements api.SubjectLister.
func (h *Host) Subjects() []api.Subject {
	keys := h.Keys()

	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]api.Subject, 0, len(keys))
	for _, key := range keys {
		s, ok := h.subjects[key]
		if !ok {
			continue
		}
		sub := api.Subject{
			Name:      key.Name,
			Source:    key.Source.String(),
			Role:      s.static.Role().String(),
			Frames:    s.frames,
			LastFrame: s.latest.SceneTime.Time.FrameNumber,
		}
		switch data := s.static.(type) {
		case livelink.SkeletonStaticData:
			sub.Bones = len(data.BoneNames)
		case livelink.TransformStaticData:
			sub.Bones = 1
		}
		out = append(out, sub)
	}
	return out
}

// Counters returns how many subjects were removed and how many frames
// arrived for unknown subjects.
func (h *Host) Counters() (removed, orphans uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.removed, h.orphans
}
