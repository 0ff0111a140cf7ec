package core

import (
	"sync"
	"testing"
	"time"
)

func TestStreamMetricsCounters(t *testing.T) {
	m := NewStreamMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.PosePushed(time.Millisecond)
				m.PoseDropped()
			}
		}()
	}
	wg.Wait()
	m.PoseCorrupt()
	m.TagPushed()
	m.QueueDrop()

	s := m.Snapshot()
	if s.PosesPushed != 200 || s.PosesDropped != 200 {
		t.Errorf("pushed/dropped = %d/%d, want 200/200", s.PosesPushed, s.PosesDropped)
	}
	if s.PosesCorrupt != 1 || s.TagsPushed != 1 || s.QueueDrops != 1 {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if s.TransformAverage < 0.99 || s.TransformAverage > 1.01 {
		t.Errorf("TransformAverage = %f, want ~1ms", s.TransformAverage)
	}
}
