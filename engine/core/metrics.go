package core

import (
	"sync"
	"sync/atomic"
	"time"
)

const AVG_COUNT uint8 = 30

// StreamMetrics counts what happened to the poses of one source. Counters are
// updated from the capture thread and read from anywhere.
type StreamMetrics struct {
	posesPushed  atomic.Uint64
	posesDropped atomic.Uint64
	posesCorrupt atomic.Uint64
	tagsPushed   atomic.Uint64
	queueDrops   atomic.Uint64

	mu             sync.Mutex
	avgCounter     uint8
	transformTimes [AVG_COUNT]float64
	transformAvgMS float64
}

// MetricsSnapshot is a point-in-time copy of StreamMetrics.
type MetricsSnapshot struct {
	PosesPushed      uint64  `json:"poses_pushed"`
	PosesDropped     uint64  `json:"poses_dropped"`
	PosesCorrupt     uint64  `json:"poses_corrupt"`
	TagsPushed       uint64  `json:"tags_pushed"`
	QueueDrops       uint64  `json:"queue_drops"`
	TransformAverage float64 `json:"transform_avg_ms"`
}

func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{}
}

func (m *StreamMetrics) PosePushed(took time.Duration) {
	m.posesPushed.Add(1)

	ms := float64(took.Nanoseconds()) / 1e6
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transformTimes[m.avgCounter] = ms
	if m.avgCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += m.transformTimes[i]
		}
		m.transformAvgMS = sum / float64(AVG_COUNT)
	}
	m.avgCounter++
	m.avgCounter %= AVG_COUNT
}

// PoseDropped counts a pose that arrived before its actor was registered.
func (m *StreamMetrics) PoseDropped() { m.posesDropped.Add(1) }

func (m *StreamMetrics) PoseCorrupt() { m.posesCorrupt.Add(1) }

func (m *StreamMetrics) TagPushed() { m.tagsPushed.Add(1) }

// QueueDrop counts a lifecycle notification lost to a full queue.
func (m *StreamMetrics) QueueDrop() { m.queueDrops.Add(1) }

func (m *StreamMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	avg := m.transformAvgMS
	m.mu.Unlock()
	return MetricsSnapshot{
		PosesPushed:      m.posesPushed.Load(),
		PosesDropped:     m.posesDropped.Load(),
		PosesCorrupt:     m.posesCorrupt.Load(),
		TagsPushed:       m.tagsPushed.Load(),
		QueueDrops:       m.queueDrops.Load(),
		TransformAverage: avg,
	}
}
