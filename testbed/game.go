// Package testbed is a minimal host for the bridge: an in-memory live-link
// client driven by the engine loop.
package testbed

import (
	"github.com/spaghettifunk/anima-livelink/engine"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/retarget"
)

// seconds between two subject summaries
const reportInterval = 5.0

type TestGame struct {
	*engine.Game
	Host *Host
}

type gameState struct {
	sinceReport float64
	ticks       uint64
}

func NewTestGame(name string, tickRate float64, logLevel string) *TestGame {
	host := NewHost()
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:     name,
				TickRate: tickRate,
				LogLevel: logLevel,
			},
			Client: host,
			State:  &gameState{},
		},
		Host: host,
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing %s...", g.ApplicationConfig.Name)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.ticks++
	state.sinceReport += deltaTime
	if state.sinceReport < reportInterval {
		return nil
	}
	state.sinceReport = 0

	for _, key := range g.Host.Keys() {
		frame, ok := g.Host.Frame(key)
		if !ok {
			core.LogDebug("%s: waiting for the first frame", key.Name)
			continue
		}
		switch f := frame.Frame.(type) {
		case retarget.SkeletalFrame:
			core.LogDebug("%s: frame %d, %d bones, %d curves", key.Name, frame.SceneTime.Time.FrameNumber, len(f.Bones), len(f.BlendShapes))
		case retarget.RigidFrame:
			p := f.Transform.Position
			core.LogDebug("%s: frame %d at [%.1f, %.1f, %.1f]", key.Name, frame.SceneTime.Time.FrameNumber, p.X, p.Y, p.Z)
		}
	}
	removed, orphans := g.Host.Counters()
	core.LogInfo("%d subjects live, %d removed, %d orphan frames", len(g.Host.Keys()), removed, orphans)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down %s after %d ticks", g.ApplicationConfig.Name, g.State.(*gameState).ticks)
	return nil
}
