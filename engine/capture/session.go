package capture

import (
	"context"
	"fmt"
	"net"

	"github.com/spaghettifunk/anima-livelink/engine/core"
)

// Handler receives the notifications a Session emits. Methods are called on
// the session's own goroutine and must not block.
type Handler interface {
	OnNewPose(actor Actor, pose Pose, trackingQuality int32)
	OnActorChanged(actorID int32, mode ActorMode)
	OnARTags(tags []ARTag)
}

// Session is a connection to a capture server.
type Session interface {
	Connect(ctx context.Context, host string, port uint16) error
	// Framerate reports the streaming rate as a fraction. A zero
	// denominator means the rate is not known yet.
	Framerate() (numerator, denominator int32)
	Actors() []Actor
	// Actor looks up a single actor; false while the server has not
	// resolved it yet.
	Actor(id int32) (Actor, bool)
	StartStreaming(what StreamFlags) error
	StopStreaming() error
	ConnectionStatus() ConnectionStatus
	SetHandler(h Handler)
	Close() error
}

// Dialer creates a fresh, unconnected session.
type Dialer func() Session

// Resolver looks up host names before connecting.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ResolveHost returns the first address of host.
func ResolveHost(ctx context.Context, r Resolver, host string) (string, error) {
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", core.ErrHostResolution, host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w %q: no addresses", core.ErrHostResolution, host)
	}
	return addrs[0], nil
}
