// Package sim is an in-process capture server. Its sessions implement
// capture.Session so the live-link source can be driven without hardware,
// either one frame at a time with Step or from its own goroutine with Run.
package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-livelink/engine/capture"
	"github.com/spaghettifunk/anima-livelink/engine/core"
)

// PoseFunc produces the raw joint transforms of actor for frame.
type PoseFunc func(frame int64, actor capture.Actor) []capture.JointTransform

type simActor struct {
	actor capture.Actor
	pose  PoseFunc
	// lookups that still report the actor as unresolved
	hiddenLookups int
}

// Server is the simulated capture scene. Every dial opens a new Session on
// it; all sessions see the same actors and tags.
type Server struct {
	mu sync.Mutex

	numerator   int32
	denominator int32

	actors   map[int32]*simActor
	tags     []capture.ARTag
	frame    int64
	sessions []*Session
}

type Option func(*Server)

// WithFramerate sets the negotiated streaming rate.
func WithFramerate(numerator, denominator int32) Option {
	return func(s *Server) {
		s.numerator = numerator
		s.denominator = denominator
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		numerator:   60,
		denominator: 1,
		actors:      make(map[int32]*simActor),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewSession opens an unconnected session on the scene.
func (s *Server) NewSession() *Session {
	sess := &Session{srv: s, status: capture.Disconnected}
	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()
	return sess
}

// Dialer returns a capture.Dialer handing out a new session per call.
func (s *Server) Dialer() capture.Dialer {
	return func() capture.Session { return s.NewSession() }
}

// Sessions lists every session dialed so far, oldest first.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sessions)
}

func (s *Server) latest() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return nil
	}
	return s.sessions[len(s.sessions)-1]
}

// Endpoint reports where the newest session was last connected to.
func (s *Server) Endpoint() (string, uint16) {
	if sess := s.latest(); sess != nil {
		return sess.Endpoint()
	}
	return "", 0
}

// Streaming reports the flags of the newest session.
func (s *Server) Streaming() capture.StreamFlags {
	if sess := s.latest(); sess != nil {
		return sess.Streaming()
	}
	return capture.StreamNothing
}

// ConnectionStatus reports the status of the newest session.
func (s *Server) ConnectionStatus() capture.ConnectionStatus {
	if sess := s.latest(); sess != nil {
		return sess.ConnectionStatus()
	}
	return capture.Disconnected
}

// Drop simulates a lost connection on every session.
func (s *Server) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.status = capture.Disconnected
	}
}

func (s *Server) Actors() []capture.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capture.Actor, 0, len(s.actors))
	for _, id := range s.sortedIDs() {
		if a := s.actors[id]; a.hiddenLookups == 0 {
			out = append(out, a.actor)
		}
	}
	return out
}

func (s *Server) Actor(id int32) (capture.Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return capture.Actor{}, false
	}
	if a.hiddenLookups > 0 {
		a.hiddenLookups--
		return capture.Actor{}, false
	}
	return a.actor, true
}

// handlers returns the handlers of the sessions that are not closed.
// s.mu must be held.
func (s *Server) handlers() []capture.Handler {
	var out []capture.Handler
	for _, sess := range s.sessions {
		if !sess.closed && sess.handler != nil {
			out = append(out, sess.handler)
		}
	}
	return out
}

// AddActor puts actor into the scene and announces it. hiddenLookups is the
// number of Actor lookups that fail before the skeleton becomes resolvable.
func (s *Server) AddActor(actor capture.Actor, pose PoseFunc, hiddenLookups int) {
	if pose == nil {
		pose = Idle
	}
	s.mu.Lock()
	s.actors[actor.ID] = &simActor{actor: actor, pose: pose, hiddenLookups: hiddenLookups}
	hs := s.handlers()
	s.mu.Unlock()

	for _, h := range hs {
		h.OnActorChanged(actor.ID, capture.ActorTracking)
	}
}

// EndActor removes the actor from the scene with the given mode, normally
// stopped or deleted.
func (s *Server) EndActor(id int32, mode capture.ActorMode) {
	s.mu.Lock()
	delete(s.actors, id)
	hs := s.handlers()
	s.mu.Unlock()

	for _, h := range hs {
		h.OnActorChanged(id, mode)
	}
}

// SetTags replaces the AR tags reported on every step.
func (s *Server) SetTags(tags []capture.ARTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = slices.Clone(tags)
}

// Step emits one frame to every connected session that streams poses: a
// pose for every actor and, when requested, the current AR tags.
func (s *Server) Step() {
	type emit struct {
		actor capture.Actor
		pose  capture.Pose
	}
	type delivery struct {
		handler capture.Handler
		poses   []emit
		tags    []capture.ARTag
	}

	s.mu.Lock()
	var streaming []*Session
	for _, sess := range s.sessions {
		if sess.handler != nil && sess.status == capture.Connected && sess.flags.Has(capture.StreamGlobalPoses) {
			streaming = append(streaming, sess)
		}
	}
	if len(streaming) == 0 {
		s.mu.Unlock()
		return
	}
	frame := s.frame
	s.frame++
	ts := frame * 1_000_000 * int64(s.denominator) / int64(s.numerator)

	base := make([]emit, 0, len(s.actors))
	for _, id := range s.sortedIDs() {
		a := s.actors[id]
		base = append(base, emit{a.actor, capture.Pose{
			ActorID:    id,
			Timestamp:  ts,
			Transforms: a.pose(frame, a.actor),
		}})
	}

	out := make([]delivery, 0, len(streaming))
	for _, sess := range streaming {
		d := delivery{handler: sess.handler, poses: make([]emit, len(base))}
		for i, e := range base {
			if sess.flags.Has(capture.StreamBlendShapes) && len(e.actor.BlendShapes) > 0 {
				e.pose.BlendShapeActivations = make([]float32, len(e.actor.BlendShapes))
				for j := range e.pose.BlendShapeActivations {
					e.pose.BlendShapeActivations[j] = float32(0.5 + 0.5*math.Sin(float64(frame+int64(j))*0.1))
				}
			}
			d.poses[i] = e
		}
		if sess.flags.Has(capture.StreamARTags) {
			d.tags = slices.Clone(s.tags)
		}
		out = append(out, d)
	}
	s.mu.Unlock()

	for _, d := range out {
		for _, e := range d.poses {
			d.handler.OnNewPose(e.actor, e.pose, 90+rand.Int32N(10))
		}
		if len(d.tags) > 0 {
			d.handler.OnARTags(d.tags)
		}
	}
}

// EmitPose delivers a single pose to every open session as the capture
// thread would. The actor does not need to be in the scene.
func (s *Server) EmitPose(actor capture.Actor, pose capture.Pose) {
	s.mu.Lock()
	hs := s.handlers()
	s.mu.Unlock()
	for _, h := range hs {
		h.OnNewPose(actor, pose, 100)
	}
}

// EmitARTags delivers tags to every open session as the capture thread would.
func (s *Server) EmitARTags(tags []capture.ARTag) {
	s.mu.Lock()
	hs := s.handlers()
	s.mu.Unlock()
	for _, h := range hs {
		h.OnARTags(tags)
	}
}

// Run steps the server at its frame rate until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.mu.Lock()
	period := time.Second * time.Duration(s.denominator) / time.Duration(s.numerator)
	s.mu.Unlock()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

func (s *Server) sortedIDs() []int32 {
	ids := make([]int32, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Session is one connection to the scene. It implements capture.Session.
type Session struct {
	srv *Server

	// guarded by srv.mu
	handler capture.Handler
	status  capture.ConnectionStatus
	host    string
	port    uint16
	flags   capture.StreamFlags
	closed  bool
}

func (c *Session) Connect(ctx context.Context, host string, port uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.closed {
		return core.ErrSessionClosed
	}
	c.host = host
	c.port = port
	c.status = capture.Connected
	return nil
}

func (c *Session) Framerate() (int32, int32) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.status != capture.Connected {
		return 0, 0
	}
	return c.srv.numerator, c.srv.denominator
}

func (c *Session) Actors() []capture.Actor {
	return c.srv.Actors()
}

func (c *Session) Actor(id int32) (capture.Actor, bool) {
	return c.srv.Actor(id)
}

func (c *Session) StartStreaming(what capture.StreamFlags) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.status != capture.Connected {
		return core.ErrNotConnected
	}
	c.flags = what
	return nil
}

func (c *Session) StopStreaming() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.flags = capture.StreamNothing
	return nil
}

// Streaming reports the flags of the last StartStreaming.
func (c *Session) Streaming() capture.StreamFlags {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.flags
}

// Endpoint reports where the session was last connected to.
func (c *Session) Endpoint() (string, uint16) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.host, c.port
}

func (c *Session) ConnectionStatus() capture.ConnectionStatus {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.status
}

func (c *Session) SetHandler(h capture.Handler) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.handler = h
}

// Close disconnects the session for good. The scene and its other sessions
// are unaffected.
func (c *Session) Close() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.closed = true
	c.status = capture.Disconnected
	c.flags = capture.StreamNothing
	c.handler = nil
	return nil
}
