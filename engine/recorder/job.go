package recorder

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-livelink/engine/core"
)

// JobTask is one unit of work for the writer.
type JobTask struct {
	Name    string
	OnStart func() error
	// OnFailure is called with the error OnStart returned.
	OnFailure func(err error)
}

// JobSystem runs submitted tasks on a fixed set of workers. Submission never
// blocks: a full queue rejects the task.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				if err := job.OnStart(); err != nil {
					js.failed.Add(1)
					core.LogError("job %s: %s", job.Name, err)
					if job.OnFailure != nil {
						job.OnFailure(err)
					}
					continue
				}
				js.completed.Add(1)
			}
		}()
	}
}

// TrySubmit queues jt unless the queue is full or the system is shut down.
func (js *JobSystem) TrySubmit(jt JobTask) bool {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		js.rejected.Add(1)
		return false
	}
	select {
	case js.jobQueue <- jt:
		return true
	default:
		js.rejected.Add(1)
		return false
	}
}

// Shutdown stops accepting work and waits for the queued tasks to finish.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return core.ErrRecorderClosed
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

// JobStats counts what happened to submitted tasks.
type JobStats struct {
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Pending   int    `json:"pending"`
}

func (js *JobSystem) Stats() JobStats {
	return JobStats{
		Completed: js.completed.Load(),
		Failed:    js.failed.Load(),
		Rejected:  js.rejected.Load(),
		Pending:   len(js.jobQueue),
	}
}
