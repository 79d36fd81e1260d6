// Package cloud integrates external storage accounts as library sources.
// Providers expose track listings; the import pipeline folds them into the
// catalog alongside local files.
package cloud

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
)

// Provider is a connected storage account that can list audio files.
type Provider interface {
	// Name is a stable lowercase identifier ("drive", "onedrive").
	Name() string
	Connected() bool
	Connect(token string) error
	Disconnect()
	// Tracks lists the account's audio files as catalog tracks with
	// remote sources. Only called while connected.
	Tracks(ctx context.Context) ([]catalog.Track, error)
}

// Registry holds the configured providers and persists their auth tokens so
// accounts stay connected across restarts.
type Registry struct {
	settings *kv.Store

	mu        sync.Mutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry backed by settings for token
// persistence.
func NewRegistry(settings *kv.Store) *Registry {
	return &Registry{
		settings:  settings,
		providers: make(map[string]Provider),
	}
}

// Register adds a provider and reconnects it if a token was persisted.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()

	token, err := r.settings.GetString(kv.BucketAuth, authKey(p.Name()))
	if err != nil || token == "" {
		return
	}
	if err := p.Connect(token); err != nil {
		log.Warn().Err(err).Str("provider", p.Name()).Msg("Failed to reconnect cloud provider")
		return
	}
	log.Info().Str("provider", p.Name()).Msg("Cloud provider reconnected")
}

// Connect authenticates the named provider and persists its token.
func (r *Registry) Connect(name, token string) error {
	p, err := r.provider(name)
	if err != nil {
		return err
	}
	if err := p.Connect(token); err != nil {
		return fmt.Errorf("failed to connect %s: %w", name, err)
	}
	if err := r.settings.PutString(kv.BucketAuth, authKey(name), token); err != nil {
		log.Warn().Err(err).Str("provider", name).Msg("Failed to persist cloud token")
	}
	return nil
}

// Disconnect signs the named provider out and drops its persisted token.
func (r *Registry) Disconnect(name string) error {
	p, err := r.provider(name)
	if err != nil {
		return err
	}
	p.Disconnect()
	if err := r.settings.Delete(kv.BucketAuth, authKey(name)); err != nil {
		log.Warn().Err(err).Str("provider", name).Msg("Failed to remove cloud token")
	}
	return nil
}

// Connected returns the connected providers, sorted by name.
func (r *Registry) Connected() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Provider
	for _, p := range r.providers {
		if p.Connected() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) provider(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown cloud provider %q", name)
	}
	return p, nil
}

func authKey(name string) string {
	return "auth/" + name
}
