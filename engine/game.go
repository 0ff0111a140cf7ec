package engine

import "github.com/spaghettifunk/anima-livelink/engine/livelink"

// Game is the host the sources feed. Client receives every subject; the
// callbacks run on the engine goroutine.
type Game struct {
	ApplicationConfig *ApplicationConfig
	Client            livelink.Client
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Shutdown func() error
