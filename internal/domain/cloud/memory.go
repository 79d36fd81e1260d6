package cloud

import (
	"context"
	"errors"
	"sync"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

// ErrNotConnected is returned when a provider is used before Connect.
var ErrNotConnected = errors.New("cloud provider not connected")

// MemoryProvider serves a canned track listing from memory. It backs the
// drive and onedrive stubs until real API clients land, and doubles as the
// test fake.
type MemoryProvider struct {
	name   string
	tracks []catalog.Track

	mu        sync.Mutex
	connected bool
	listErr   error
}

// NewMemoryProvider creates a provider named name serving tracks.
func NewMemoryProvider(name string, tracks []catalog.Track) *MemoryProvider {
	return &MemoryProvider{name: name, tracks: tracks}
}

func (p *MemoryProvider) Name() string { return p.name }

func (p *MemoryProvider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Connect accepts any non-empty token.
func (p *MemoryProvider) Connect(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *MemoryProvider) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

// Tracks returns copies of the canned listing.
func (p *MemoryProvider) Tracks(ctx context.Context) ([]catalog.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	if p.listErr != nil {
		return nil, p.listErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]catalog.Track, len(p.tracks))
	copy(out, p.tracks)
	return out, nil
}

// FailListings makes subsequent Tracks calls return err.
func (p *MemoryProvider) FailListings(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}
