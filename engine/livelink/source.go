package livelink

import (
	"context"
	"fmt"
	"maps"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-livelink/engine/capture"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/retarget"
	"github.com/spaghettifunk/anima-livelink/engine/skeleton"
)

// Options configure a Source. The zero value of every field but Host is
// usable.
type Options struct {
	Host string
	// Port defaults to capture.DefaultPort.
	Port         uint16
	UseTCP       bool
	StreamARTags bool
	Compressed   bool

	QueueCapacity   int
	ResolveAttempts int
	Resolver        capture.Resolver
}

func (o Options) flags() capture.StreamFlags {
	f := capture.StreamGlobalPoses | capture.StreamBlendShapes | capture.StreamOnlyRootTranslation
	if o.UseTCP {
		f |= capture.StreamTCP
	}
	if o.StreamARTags {
		f |= capture.StreamARTags
	}
	if o.Compressed {
		f |= capture.StreamCompressed
	}
	return f
}

// Source bridges one capture session into the engine. The session calls the
// capture.Handler methods from its own goroutine; everything that registers
// or removes subjects happens in Update, which the host calls once per tick
// from a single goroutine.
type Source struct {
	dir      *Directory
	dial     capture.Dialer
	registry *Registry
	metrics  *core.StreamMetrics
	now      func() float64

	mu          sync.Mutex
	opts        Options
	guid        uuid.UUID
	client      Client
	session     capture.Session
	endpoint    string
	index       int
	rate        FrameRate
	seenConnect bool
	log         *log.Logger
}

// NewSource resolves opts.Host, opens a session through dial and starts
// streaming. Failing to resolve the host or to connect produces no source.
func NewSource(ctx context.Context, dir *Directory, dial capture.Dialer, opts Options) (*Source, error) {
	if opts.Port == 0 {
		opts.Port = capture.DefaultPort
	}
	s := &Source{
		dir:      dir,
		dial:     dial,
		registry: NewRegistry(opts.QueueCapacity, opts.ResolveAttempts),
		metrics:  core.NewStreamMetrics(),
		now:      core.PlatformSeconds,
		opts:     opts,
		guid:     uuid.New(),
		log:      core.Logger("source", opts.Host),
	}
	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) open(ctx context.Context) error {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()

	c, err := s.connect(ctx, opts)
	if err != nil {
		return err
	}
	s.install(c, opts.Host)
	c.start(opts.flags())
	return nil
}

// conn is a connected session that is not streaming yet, with the directory
// slot it holds.
type conn struct {
	session  capture.Session
	endpoint string
	index    int
	rate     FrameRate
	log      *log.Logger
}

func (c conn) start(flags capture.StreamFlags) {
	if err := c.session.StartStreaming(flags); err != nil {
		c.log.Warn("unable to start streaming", "err", err)
	}
	c.log.Info("connected", "endpoint", c.endpoint, "rate", c.rate.AsDecimal())
}

// connect resolves opts.Host and connects a fresh session to it. Nothing on
// the source changes; on failure the session and its index are released.
func (s *Source) connect(ctx context.Context, opts Options) (conn, error) {
	addr, err := capture.ResolveHost(ctx, opts.Resolver, opts.Host)
	if err != nil {
		return conn{}, err
	}
	endpoint := net.JoinHostPort(addr, strconv.Itoa(int(opts.Port)))
	index := s.dir.Acquire(endpoint)
	logger := core.Logger("source", InstancePrefix(opts.Host, index))

	session := s.dial()
	session.SetHandler(s)
	if err := session.Connect(ctx, addr, opts.Port); err != nil {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("unable to close failed session", "err", cerr)
		}
		if rerr := s.dir.Release(endpoint, index); rerr != nil {
			logger.Warn("unable to release index", "endpoint", endpoint, "err", rerr)
		}
		return conn{}, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}

	c := conn{session: session, endpoint: endpoint, index: index, log: logger}
	c.rate.Numerator, c.rate.Denominator = session.Framerate()
	return c, nil
}

// install makes c the current session of the source.
func (s *Source) install(c conn, host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Host = host
	s.session = c.session
	s.endpoint = c.endpoint
	s.index = c.index
	s.rate = c.rate
	s.seenConnect = false
	s.log = c.log
}

// ReceiveClient hands the source the engine client its subjects are pushed
// to, and asks for every actor the session already knows about.
func (s *Source) ReceiveClient(client Client, guid uuid.UUID) {
	s.registry.Reset()

	s.mu.Lock()
	s.client = client
	if guid != uuid.Nil {
		s.guid = guid
	}
	session := s.session
	s.mu.Unlock()

	if client == nil || session == nil {
		return
	}
	s.requestAll(session)
}

func (s *Source) requestAll(session capture.Session) {
	for _, actor := range session.Actors() {
		s.requestAdd(actor.ID)
	}
}

// current returns the client, session and logger under one lock.
func (s *Source) current() (Client, capture.Session, *log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.session, s.log
}

func (s *Source) logger() *log.Logger {
	_, _, l := s.current()
	return l
}

// OnNewPose implements capture.Handler.
func (s *Source) OnNewPose(actor capture.Actor, pose capture.Pose, trackingQuality int32) {
	client, _, logger := s.current()
	if client == nil {
		return
	}

	rec, ok, outcome := s.registry.LookupOrRequestAdd(actor.ID)
	if !ok {
		s.metrics.PoseDropped()
		switch outcome {
		case Queued:
			logger.Debug("pose for unknown actor, queued add", "actor", actor.ID)
		case Dropped:
			s.metrics.QueueDrop()
			logger.Warn("add queue full, pose dropped", "actor", actor.ID)
		}
		return
	}

	start := time.Now()
	frame, err := retarget.Transform(rec.Skeleton, pose)
	if err != nil {
		s.metrics.PoseCorrupt()
		logger.Error("discarding pose", "subject", rec.Key.Name, "err", err)
		return
	}
	data := s.frameData(pose.Timestamp, rec.Skeleton.MetaData, frame)
	data.MetaData["TrackingQuality"] = strconv.Itoa(int(trackingQuality))
	client.PushSubjectFrameData(rec.Key, data)
	s.metrics.PosePushed(time.Since(start))
}

// OnActorChanged implements capture.Handler.
func (s *Source) OnActorChanged(actorID int32, mode capture.ActorMode) {
	client, _, logger := s.current()
	if client == nil {
		return
	}

	logger.Debug("actor changed", "actor", actorID, "mode", mode)
	switch {
	case mode.Ends():
		out := s.registry.RequestRemove(actorID)
		if out == AlreadyGone {
			// tags end through the same notification
			out = s.registry.RequestRemoveTag(actorID)
		}
		switch out {
		case Queued:
		case Dropped:
			s.metrics.QueueDrop()
			logger.Warn("remove queue full, removal lost", "actor", actorID)
		default:
			logger.Info("ignoring removal", "actor", actorID, "mode", mode, "reason", out)
		}
	case mode == capture.ActorUnknown:
		logger.Debug("ignoring actor in unknown mode", "actor", actorID)
	default:
		s.requestAdd(actorID)
	}
}

func (s *Source) requestAdd(actorID int32) {
	switch out := s.registry.RequestAdd(actorID); out {
	case Queued:
	case Dropped:
		s.metrics.QueueDrop()
		s.logger().Warn("add queue full, actor lost", "actor", actorID)
	default:
		s.logger().Debug("ignoring add", "actor", actorID, "reason", out)
	}
}

// OnARTags implements capture.Handler.
func (s *Source) OnARTags(tags []capture.ARTag) {
	client, _, logger := s.current()
	if client == nil {
		return
	}

	for _, tag := range tags {
		rec, ok, outcome := s.registry.LookupOrRequestTag(tag.ID)
		if !ok {
			if outcome == Dropped {
				s.metrics.QueueDrop()
				logger.Warn("tag queue full", "tag", tag.ID)
			}
			continue
		}
		frame := retarget.RigidFrame{Transform: retarget.TransformTag(tag.Transform)}
		client.PushSubjectFrameData(rec.Key, s.frameData(0, nil, frame))
		s.metrics.TagPushed()
	}
}

// frameData stamps frame with the host clock, the scene time derived from
// the capture timestamp in microseconds, and its metadata.
func (s *Source) frameData(timestamp int64, actorMeta map[string]string, frame retarget.Frame) FrameData {
	rate := s.frameRate()
	seconds := float64(timestamp) * 1e-6
	ft := rate.AsFrameTime(seconds)

	md := make(map[string]string, len(actorMeta)+4)
	maps.Copy(md, actorMeta)
	md[MetaTimestampInSeconds] = fmt.Sprintf("%f", seconds)
	md[MetaFrameRate] = fmt.Sprintf("%f", rate.AsDecimal())
	md[MetaFrameNumber] = fmt.Sprintf("%d", ft.FrameNumber)

	return FrameData{
		WorldTime: s.now(),
		SceneTime: QualifiedFrameTime{Time: ft, Rate: rate},
		MetaData:  md,
		Frame:     frame,
	}
}

// frameRate returns the negotiated rate, asking the session again while it
// is not known.
func (s *Source) frameRate() FrameRate {
	s.mu.Lock()
	rate, session := s.rate, s.session
	s.mu.Unlock()
	if rate.IsValid() || session == nil {
		return rate
	}

	rate.Numerator, rate.Denominator = session.Framerate()
	if rate.IsValid() {
		s.mu.Lock()
		s.rate = rate
		s.mu.Unlock()
	}
	return rate
}

// Update applies every pending lifecycle request: removals first, then actor
// adds, then AR tags. It must be called from a single goroutine, the one
// allowed to register subjects with the client.
func (s *Source) Update() {
	client, session, logger := s.current()
	if client == nil || session == nil {
		return
	}

	for _, rec := range s.registry.DrainRemovals() {
		client.RemoveSubject(rec.Key)
		logger.Info("removed subject", "subject", rec.Key.Name, "actor", rec.ID)
	}

	for _, id := range s.registry.DrainAdds() {
		actor, ok := session.Actor(id)
		if !ok {
			switch out := s.registry.Requeue(id); out {
			case Queued:
				logger.Debug("actor not resolvable yet, retrying", "actor", id)
			case GaveUp, Dropped:
				logger.Warn("giving up on actor until the next connect", "actor", id, "reason", out)
			}
			continue
		}
		s.register(client, actor)
	}

	for _, id := range s.registry.DrainTags() {
		s.registerTag(client, id)
	}
}

func (s *Source) register(client Client, actor capture.Actor) {
	logger := s.logger()
	sk, err := skeleton.FromActor(actor)
	if err != nil {
		s.registry.Forget(actor.ID)
		logger.Error("unable to build skeleton", "actor", actor.ID, "err", err)
		return
	}

	key := s.subjectKey(sk.Name)
	var static StaticData
	if sk.IsRigid() {
		static = TransformStaticData{}
	} else {
		static = SkeletonStaticData{
			BoneNames:     sk.BoneNames(),
			BoneParents:   sk.BoneParents(),
			PropertyNames: sk.BlendShapes,
		}
	}
	client.PushSubjectStaticData(key, static)
	if !s.registry.Activate(actor.ID, key, sk) {
		logger.Warn("actor already registered", "actor", actor.ID)
		return
	}
	logger.Info("added subject", "subject", key.Name, "actor", actor.ID, "role", static.Role(), "bones", len(sk.Joints))
}

func (s *Source) registerTag(client Client, id int32) {
	sk := skeleton.Tag(id)
	key := s.subjectKey(sk.Name)
	client.PushSubjectStaticData(key, TransformStaticData{})
	if !s.registry.ActivateTag(id, key, sk) {
		s.registry.ForgetTag(id)
		return
	}
	s.logger().Info("added tag", "subject", key.Name, "tag", id)
}

func (s *Source) subjectKey(name string) SubjectKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SubjectKey{
		Source: s.guid,
		Name:   s.dir.Prefix(s.endpoint, s.opts.Host, s.index) + name,
	}
}

// Status polls the connection. The first time the session is seen connected,
// every actor it knows about is queued for registration, along with the
// actors given up on while they could not be resolved.
func (s *Source) Status() capture.ConnectionStatus {
	s.mu.Lock()
	session, client := s.session, s.client
	s.mu.Unlock()
	if session == nil {
		return capture.Disconnected
	}

	status := session.ConnectionStatus()
	s.mu.Lock()
	first := status == capture.Connected && !s.seenConnect
	s.seenConnect = status == capture.Connected
	s.mu.Unlock()

	if first && client != nil {
		s.requestAll(session)
		for _, id := range s.registry.TakeAbandoned() {
			s.requestAdd(id)
		}
	}
	return status
}

// IsValid reports whether the source has a client and a connected session.
func (s *Source) IsValid() bool {
	client, session, _ := s.current()
	return client != nil && session != nil && session.ConnectionStatus() == capture.Connected
}

// Disable stops streaming and forgets every subject. Poses arriving after it
// returns are ignored.
func (s *Source) Disable() {
	s.mu.Lock()
	session := s.session
	s.client = nil
	s.mu.Unlock()

	if session != nil {
		if err := session.StopStreaming(); err != nil {
			s.logger().Warn("unable to stop streaming", "err", err)
		}
	}
	s.registry.Reset()
	s.logger().Info("disabled")
}

// RequestShutdown stops the source for good. It always succeeds.
func (s *Source) RequestShutdown() bool {
	if err := s.Close(); err != nil {
		s.logger().Warn("shutdown", "err", err)
	}
	return true
}

// Close stops streaming, releases the session and frees the instance index.
func (s *Source) Close() error {
	s.mu.Lock()
	session, endpoint, index := s.session, s.endpoint, s.index
	s.session = nil
	s.client = nil
	s.mu.Unlock()

	if session == nil {
		return nil
	}
	s.registry.Reset()
	if err := session.StopStreaming(); err != nil {
		s.logger().Warn("unable to stop streaming", "err", err)
	}
	if err := session.Close(); err != nil {
		return err
	}
	return s.dir.Release(endpoint, index)
}

// SetHost reconnects to a different host. The new session is connected
// before anything is torn down: if that fails the source keeps streaming from
// the old host and the error is returned. On success every subject of the
// old session is unregistered. Like Update it must be called from the
// goroutine that owns the client.
func (s *Source) SetHost(ctx context.Context, host string) error {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()
	opts.Host = host

	c, err := s.connect(ctx, opts)
	if err != nil {
		s.logger().Warn("host change failed, keeping current session", "host", host, "err", err)
		return err
	}

	client, old, logger := s.current()
	if old != nil {
		if client != nil {
			for _, rec := range s.registry.Subjects() {
				client.RemoveSubject(rec.Key)
			}
		}
		s.registry.Reset()
		if err := old.StopStreaming(); err != nil {
			logger.Warn("unable to stop streaming", "err", err)
		}
		if err := old.Close(); err != nil {
			logger.Warn("unable to close session", "err", err)
		}
		s.mu.Lock()
		endpoint, index := s.endpoint, s.index
		s.mu.Unlock()
		if err := s.dir.Release(endpoint, index); err != nil {
			logger.Warn("unable to release index", "endpoint", endpoint, "err", err)
		}
	}

	s.install(c, host)
	c.start(opts.flags())
	c.log.Info("host changed", "host", host)
	if client != nil {
		s.requestAll(c.session)
	}
	return nil
}

func (s *Source) GUID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guid
}

func (s *Source) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Host
}

func (s *Source) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

func (s *Source) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Prefix is the prefix new subjects currently get.
func (s *Source) Prefix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.Prefix(s.endpoint, s.opts.Host, s.index)
}

func (s *Source) FrameRate() FrameRate {
	return s.frameRate()
}

func (s *Source) Metrics() core.MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Subjects lists the registered subjects.
func (s *Source) Subjects() []Record {
	return s.registry.Subjects()
}

// State reports the lifecycle state of an actor.
func (s *Source) State(actorID int32) Status {
	return s.registry.State(actorID)
}
