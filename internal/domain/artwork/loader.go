package artwork

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Result is a completed artwork load delivered to the callback.
type Result struct {
	TrackID string
	Path    string
	Err     error
}

// Generator produces a thumbnail path for a track. *Thumbnailer is the
// production implementation.
type Generator interface {
	Thumbnail(sourcePath, trackID string, size ThumbnailSize) (string, error)
}

// Loader runs thumbnail generation off the caller's goroutine with
// per-track cancellation. A new request for a track cancels the previous
// one, and results from cancelled loads are suppressed so a view never
// receives artwork for a track it scrolled past.
type Loader struct {
	thumbs  Generator
	deliver func(Result)

	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

// NewLoader creates a loader delivering results through deliver. The
// callback runs on the loader's goroutines.
func NewLoader(thumbs Generator, deliver func(Result)) *Loader {
	return &Loader{
		thumbs:  thumbs,
		deliver: deliver,
		pending: make(map[string]context.CancelFunc),
	}
}

// Load requests a thumbnail for the track, replacing any in-flight request
// for the same ID.
func (l *Loader) Load(trackID, sourcePath string, size ThumbnailSize) {
	ctx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	if prev, ok := l.pending[trackID]; ok {
		prev()
	}
	l.pending[trackID] = cancel
	l.mu.Unlock()

	go func() {
		path, err := l.thumbs.Thumbnail(sourcePath, trackID, size)

		l.mu.Lock()
		// Only the request that still owns the slot may deliver.
		stale := ctx.Err() != nil
		if !stale {
			delete(l.pending, trackID)
		}
		l.mu.Unlock()

		if stale {
			log.Debug().Str("trackID", trackID).Msg("Artwork load superseded")
			return
		}
		l.deliver(Result{TrackID: trackID, Path: path, Err: err})
	}()
}

// Cancel drops any in-flight load for the track.
func (l *Loader) Cancel(trackID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.pending[trackID]; ok {
		cancel()
		delete(l.pending, trackID)
	}
}

// CancelAll drops every in-flight load, for shutdown.
func (l *Loader) CancelAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, cancel := range l.pending {
		cancel()
		delete(l.pending, id)
	}
}
