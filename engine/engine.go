// Package engine owns the tick loop: it polls every live-link source, applies
// their queued registrations and then lets the host update.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-livelink/engine/capture"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has shut down and cannot be restarted
	EngineStageStopped
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	DefaultTickRate  = 60.0
	commandQueueSize = 64
)

var ErrCommandQueueFull = errors.New("engine command queue is full")

type Engine struct {
	gameInstance *Game
	clock        *core.Clock
	lastTime     float64
	tickPeriod   time.Duration
	commands     chan func()

	mu           sync.RWMutex
	currentStage Stage
	sources      []*livelink.Source
	lastStatus   map[uuid.UUID]capture.ConnectionStatus
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("engine needs a game with an application config")
	}
	rate := g.ApplicationConfig.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Engine{
		gameInstance: g,
		clock:        core.NewClock(),
		tickPeriod:   time.Duration(float64(time.Second) / rate),
		commands:     make(chan func(), commandQueueSize),
		currentStage: EngineStageUninitialized,
		lastStatus:   make(map[uuid.UUID]capture.ConnectionStatus),
	}, nil
}

func (e *Engine) Initialize() error {
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	e.setStage(EngineStageInitialized)
	core.LogInfo("%s initialized, ticking every %s", e.gameInstance.ApplicationConfig.Name, e.tickPeriod)
	return nil
}

func (e *Engine) Stage() Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentStage
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	e.currentStage = s
	e.mu.Unlock()
}

// AddSource hands src the host client and starts polling it.
func (e *Engine) AddSource(src *livelink.Source) {
	src.ReceiveClient(e.gameInstance.Client, uuid.Nil)
	e.mu.Lock()
	e.sources = append(e.sources, src)
	e.mu.Unlock()
}

// RemoveSource shuts the source with guid down. It reports whether one was
// found.
func (e *Engine) RemoveSource(guid uuid.UUID) bool {
	e.mu.Lock()
	i := slices.IndexFunc(e.sources, func(s *livelink.Source) bool { return s.GUID() == guid })
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	src := e.sources[i]
	e.sources = slices.Delete(e.sources, i, i+1)
	delete(e.lastStatus, guid)
	e.mu.Unlock()

	src.RequestShutdown()
	return true
}

// Sources returns a snapshot of the polled sources.
func (e *Engine) Sources() []*livelink.Source {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.sources)
}

// Do queues fn to run on the engine goroutine at the start of the next tick.
// Source calls that touch the host client, like SetHost, go through here.
func (e *Engine) Do(fn func()) error {
	select {
	case e.commands <- fn:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Tick runs one iteration of the loop. Run calls it on every tick; tests
// call it directly.
func (e *Engine) Tick(delta float64) error {
drain:
	for {
		select {
		case fn := <-e.commands:
			fn()
		default:
			break drain
		}
	}

	for _, src := range e.Sources() {
		status := src.Status()
		e.mu.Lock()
		prev, seen := e.lastStatus[src.GUID()]
		e.lastStatus[src.GUID()] = status
		e.mu.Unlock()
		if !seen || prev != status {
			core.LogInfo("source %s is %s", src.Host(), status)
		}
		src.Update()
	}

	if e.gameInstance.FnUpdate != nil {
		return e.gameInstance.FnUpdate(delta)
	}
	return nil
}

// Run ticks until ctx is done or the host update fails, then shuts down.
func (e *Engine) Run(ctx context.Context) error {
	e.setStage(EngineStageRunning)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	ticker := time.NewTicker(e.tickPeriod)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			e.clock.Update()
			currentTime := e.clock.Elapsed()
			delta := currentTime - e.lastTime

			if err := e.Tick(delta); err != nil {
				core.LogError("host update failed, shutting down: %s", err)
				runErr = err
				break loop
			}
			e.lastTime = currentTime
		}
	}

	e.clock.Stop()
	return errors.Join(runErr, e.Shutdown())
}

// Shutdown stops every source and the host. Calling it again is a no-op.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageStopped {
		e.mu.Unlock()
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	sources := e.sources
	e.sources = nil
	e.mu.Unlock()

	for _, src := range sources {
		src.RequestShutdown()
	}

	var err error
	if e.gameInstance.FnShutdown != nil {
		err = e.gameInstance.FnShutdown()
	}
	e.setStage(EngineStageStopped)
	return err
}
