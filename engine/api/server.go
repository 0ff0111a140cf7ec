// Package api serves a read-only JSON view of the running bridge.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/anima-livelink/engine/recorder"
)

// SubjectLister is implemented by the host the sources push into.
type SubjectLister interface {
	Subjects() []Subject
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	listener   net.Listener
}

type ServerConfig struct {
	Listen    string
	Sources   func() []SourceView
	Subjects  SubjectLister
	Recorder  *recorder.Recorder
	Logger    *log.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Listen,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Listen binds the address so that Addr reports the real port before Start
// is called.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Start serves until Shutdown. It listens first if Listen was not called.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("starting HTTP server", "addr", s.Addr())
	err := s.httpServer.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
