package livelink

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-livelink/engine/containers"
	"github.com/spaghettifunk/anima-livelink/engine/skeleton"
)

const (
	DefaultQueueCapacity = 10
	// DefaultResolveAttempts bounds how many polls an actor may stay
	// unresolvable before its add request is dropped.
	DefaultResolveAttempts = 600
)

type Status uint8

const (
	StatusUnknown Status = iota
	StatusQueuedAdd
	StatusActive
	StatusQueuedRemove
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusQueuedAdd:
		return "queued-add"
	case StatusActive:
		return "active"
	case StatusQueuedRemove:
		return "queued-remove"
	case StatusRemoved:
		return "removed"
	}
	return "unknown"
}

// Outcome tells a producer what became of its request.
type Outcome uint8

const (
	Queued Outcome = iota
	AlreadyActive
	AlreadyQueued
	AlreadyGone
	// Dropped means the queue was full; the request is lost.
	Dropped
	// GaveUp means the actor stayed unresolvable for too many polls.
	GaveUp
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case AlreadyActive:
		return "already active"
	case AlreadyQueued:
		return "already queued"
	case AlreadyGone:
		return "already gone"
	case Dropped:
		return "dropped"
	case GaveUp:
		return "gave up"
	}
	return "unknown"
}

type Record struct {
	ID       int32
	Key      SubjectKey
	Skeleton *skeleton.Skeleton
	Status   Status

	attempts int
	// readd is set when an add arrives while a removal is still pending.
	readd bool
}

// Registry maps actor and tag identifiers to registered subjects. Producers
// post add and remove intents into bounded channels without ever blocking;
// the single consumer drains them on its poll. Every method scopes its own
// lock and none of them call into the engine.
type Registry struct {
	mu sync.Mutex

	actors map[int32]*Record
	tags   map[int32]*Record

	adds       chan int32
	removes    chan int32
	tagAdds    chan int32
	tagRemoves chan int32

	// retry holds adds whose skeleton could not be resolved yet. Only the
	// consumer touches it.
	retry *containers.RingQueue[int32]
	// abandoned holds actors whose add was given up on, to be asked for
	// again on the next connect.
	abandoned map[int32]struct{}

	maxAttempts int
}

func NewRegistry(queueCapacity, resolveAttempts int) *Registry {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if resolveAttempts <= 0 {
		resolveAttempts = DefaultResolveAttempts
	}
	return &Registry{
		actors:      make(map[int32]*Record),
		tags:        make(map[int32]*Record),
		adds:        make(chan int32, queueCapacity),
		removes:     make(chan int32, queueCapacity),
		tagAdds:     make(chan int32, queueCapacity),
		tagRemoves:  make(chan int32, queueCapacity),
		retry:       containers.NewRingQueue[int32](queueCapacity),
		abandoned:   make(map[int32]struct{}),
		maxAttempts: resolveAttempts,
	}
}

func registered(r *Record) bool {
	return r != nil && (r.Status == StatusActive || r.Status == StatusQueuedRemove)
}

func post(ch chan<- int32, id int32) bool {
	select {
	case ch <- id:
		return true
	default:
		return false
	}
}

func drain(ch <-chan int32) []int32 {
	var out []int32
	for {
		select {
		case id := <-ch:
			out = append(out, id)
		default:
			return out
		}
	}
}

// Lookup returns the subject of a registered actor.
func (r *Registry) Lookup(id int32) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.actors[id]
	if !registered(rec) {
		return Record{}, false
	}
	return *rec, true
}

// LookupOrRequestAdd is the pose path: it returns the subject of a registered
// actor, or turns the pose into an add request for an unknown one.
func (r *Registry) LookupOrRequestAdd(id int32) (Record, bool, Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.actors[id]; registered(rec) {
		return *rec, true, AlreadyActive
	}
	return Record{}, false, r.requestAdd(r.actors, r.adds, id)
}

// RequestAdd posts an add for an actor that appeared or changed mode.
func (r *Registry) RequestAdd(id int32) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestAdd(r.actors, r.adds, id)
}

// LookupOrRequestTag is the tag counterpart of LookupOrRequestAdd.
func (r *Registry) LookupOrRequestTag(id int32) (Record, bool, Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.tags[id]; registered(rec) {
		return *rec, true, AlreadyActive
	}
	return Record{}, false, r.requestAdd(r.tags, r.tagAdds, id)
}

func (r *Registry) requestAdd(records map[int32]*Record, ch chan<- int32, id int32) Outcome {
	rec := records[id]
	switch {
	case rec != nil && rec.Status == StatusActive:
		return AlreadyActive
	case rec != nil && rec.Status == StatusQueuedAdd:
		return AlreadyQueued
	case rec != nil && rec.Status == StatusQueuedRemove:
		if rec.readd {
			return AlreadyQueued
		}
		if !post(ch, id) {
			return Dropped
		}
		rec.readd = true
		return Queued
	}
	if !post(ch, id) {
		return Dropped
	}
	records[id] = &Record{ID: id, Status: StatusQueuedAdd}
	return Queued
}

// RequestRemove posts a removal. Only registered actors can be removed.
func (r *Registry) RequestRemove(id int32) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestRemove(r.actors, r.removes, id)
}

// RequestRemoveTag posts the removal of a registered AR tag.
func (r *Registry) RequestRemoveTag(id int32) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestRemove(r.tags, r.tagRemoves, id)
}

func (r *Registry) requestRemove(records map[int32]*Record, ch chan<- int32, id int32) Outcome {
	rec := records[id]
	switch {
	case rec == nil || rec.Status == StatusRemoved || rec.Status == StatusQueuedAdd:
		return AlreadyGone
	case rec.Status == StatusQueuedRemove:
		if rec.readd {
			// the pending add is superseded
			rec.readd = false
			return Queued
		}
		return AlreadyQueued
	}
	if !post(ch, id) {
		return Dropped
	}
	rec.Status = StatusQueuedRemove
	return Queued
}

// DrainRemovals pops every pending actor and tag removal and marks them
// removed. The caller unregisters the returned subjects from the engine.
func (r *Registry) DrainRemovals() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := drainRemovals(r.actors, r.removes, nil)
	return drainRemovals(r.tags, r.tagRemoves, out)
}

func drainRemovals(records map[int32]*Record, ch <-chan int32, out []Record) []Record {
	for _, id := range drain(ch) {
		rec := records[id]
		if rec == nil || rec.Status != StatusQueuedRemove {
			continue
		}
		out = append(out, *rec)
		next := &Record{ID: id, Status: StatusRemoved}
		if rec.readd {
			next.Status = StatusQueuedAdd
		}
		records[id] = next
	}
	return out
}

// DrainAdds pops every pending actor add: first the ones waiting for their
// skeleton, then new requests in arrival order.
func (r *Registry) DrainAdds() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []int32
	for !r.retry.IsEmpty() {
		id, _ := r.retry.Dequeue()
		pending = append(pending, id)
	}
	pending = append(pending, drain(r.adds)...)

	var out, deferred []int32
	for _, id := range pending {
		rec := r.actors[id]
		switch {
		case rec == nil:
		case rec.Status == StatusQueuedAdd && !slices.Contains(out, id):
			out = append(out, id)
		case rec.Status == StatusQueuedRemove && rec.readd && !slices.Contains(deferred, id):
			// wait until the removal has been applied
			deferred = append(deferred, id)
		}
	}
	for _, id := range deferred {
		if err := r.retry.Enqueue(id); err != nil {
			r.actors[id].readd = false
		}
	}
	return out
}

// DrainTags pops every pending tag add, in arrival order. Adds superseded by
// a later removal are skipped.
func (r *Registry) DrainTags() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int32
	for _, id := range drain(r.tagAdds) {
		if rec := r.tags[id]; rec != nil && rec.Status == StatusQueuedAdd && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Requeue keeps an actor whose skeleton could not be resolved yet for the
// next poll.
func (r *Registry) Requeue(id int32) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.actors[id]
	if rec == nil || rec.Status != StatusQueuedAdd {
		return AlreadyGone
	}
	rec.attempts++
	if rec.attempts >= r.maxAttempts {
		delete(r.actors, id)
		r.abandoned[id] = struct{}{}
		return GaveUp
	}
	if err := r.retry.Enqueue(id); err != nil {
		delete(r.actors, id)
		r.abandoned[id] = struct{}{}
		return Dropped
	}
	return Queued
}

// TakeAbandoned returns, in ascending order, the actors given up on since the
// last call.
func (r *Registry) TakeAbandoned() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Sorted(maps.Keys(r.abandoned))
	clear(r.abandoned)
	return out
}

// Forget drops a pending add, for actors whose skeleton cannot be used.
func (r *Registry) Forget(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.actors[id]; rec != nil && rec.Status == StatusQueuedAdd {
		delete(r.actors, id)
	}
}

// ForgetTag drops a pending tag add.
func (r *Registry) ForgetTag(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.tags[id]; rec != nil && rec.Status == StatusQueuedAdd {
		delete(r.tags, id)
	}
}

// Activate records a subject the caller has just registered with the engine.
// It reports false if the actor is already registered.
func (r *Registry) Activate(id int32, key SubjectKey, s *skeleton.Skeleton) bool {
	return r.activate(r.actors, id, key, s)
}

func (r *Registry) ActivateTag(id int32, key SubjectKey, s *skeleton.Skeleton) bool {
	return r.activate(r.tags, id, key, s)
}

func (r *Registry) activate(records map[int32]*Record, id int32, key SubjectKey, s *skeleton.Skeleton) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if registered(records[id]) {
		return false
	}
	records[id] = &Record{ID: id, Key: key, Skeleton: s, Status: StatusActive}
	return true
}

// State reports the lifecycle state of an actor.
func (r *Registry) State(id int32) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.actors[id]; rec != nil {
		return rec.Status
	}
	return StatusUnknown
}

// TagState reports the lifecycle state of an AR tag.
func (r *Registry) TagState(id int32) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.tags[id]; rec != nil {
		return rec.Status
	}
	return StatusUnknown
}

// Len is the number of registered actors and tags.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, records := range []map[int32]*Record{r.actors, r.tags} {
		for _, rec := range records {
			if registered(rec) {
				n++
			}
		}
	}
	return n
}

// Subjects lists the registered subjects ordered by name.
func (r *Registry) Subjects() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, records := range []map[int32]*Record{r.actors, r.tags} {
		for _, rec := range records {
			if registered(rec) {
				out = append(out, *rec)
			}
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.Key.Name, b.Key.Name)
	})
	return out
}

// Reset forgets every actor, tag and pending request.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.actors)
	clear(r.tags)
	drain(r.adds)
	drain(r.removes)
	drain(r.tagAdds)
	drain(r.tagRemoves)
	clear(r.abandoned)
	for !r.retry.IsEmpty() {
		_, _ = r.retry.Dequeue()
	}
}
