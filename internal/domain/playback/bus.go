package playback

import (
	"sync"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

// Event is a playback state-change notification published on the Bus.
type Event interface {
	eventKind() catalog.MediaKind
}

// StateChanged is published whenever an engine's transport state moves.
type StateChanged struct {
	Kind        catalog.MediaKind
	State       State
	Track       *catalog.Track // nil when idle
	PositionSec float64
}

// TrackStarted is published when an engine begins playing a new track.
type TrackStarted struct {
	Kind  catalog.MediaKind
	Track *catalog.Track
}

// KindActivated is published by the coordinator after a kind takes over
// the audio session.
type KindActivated struct {
	Kind catalog.MediaKind
}

func (e StateChanged) eventKind() catalog.MediaKind  { return e.Kind }
func (e TrackStarted) eventKind() catalog.MediaKind  { return e.Kind }
func (e KindActivated) eventKind() catalog.MediaKind { return e.Kind }

// Listener receives playback events.
type Listener func(Event)

// Bus is a typed event emitter connecting the engines to their observers
// (now-playing sync, transport push). Subscribers register a listener and
// get back an unsubscribe function for explicit teardown.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Publish delivers an event to every registered listener synchronously,
// in the caller's goroutine. Engines publish only from their command path,
// so listeners observe events in order.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	fns := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
