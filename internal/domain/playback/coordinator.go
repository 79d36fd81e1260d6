package playback

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

// pauser is the slice of an engine the coordinator needs: pause without
// re-entering the coordinator.
type pauser interface {
	pauseForCoordinator()
}

// Coordinator enforces the cross-player invariant: at most one of the two
// engines is playing at any instant. Activate pauses the other side
// synchronously before returning; there is no queueing, last caller wins.
type Coordinator struct {
	bus *Bus

	mu      sync.Mutex
	active  catalog.MediaKind
	engines map[catalog.MediaKind]pauser
}

// NewCoordinator creates a coordinator publishing on bus.
func NewCoordinator(bus *Bus) *Coordinator {
	return &Coordinator{
		bus:     bus,
		engines: make(map[catalog.MediaKind]pauser),
	}
}

// register attaches an engine to its kind. Called by the engine constructors.
func (c *Coordinator) register(kind catalog.MediaKind, e pauser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engines[kind] = e
}

// Activate hands the audio session to kind, pausing every other engine.
// Idempotent: re-activating the current kind still broadcasts. Pausing an
// already-paused engine is a no-op by contract.
func (c *Coordinator) Activate(kind catalog.MediaKind) {
	c.mu.Lock()
	var others []pauser
	for k, e := range c.engines {
		if k != kind {
			others = append(others, e)
		}
	}
	c.active = kind
	c.mu.Unlock()

	for _, e := range others {
		e.pauseForCoordinator()
	}

	log.Debug().Str("kind", string(kind)).Msg("Media kind activated")
	c.bus.Publish(KindActivated{Kind: kind})
}

// Active returns the kind that last activated, or "" before first playback.
func (c *Coordinator) Active() catalog.MediaKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
