// Package nowplaying keeps external now-playing surfaces (lock screens,
// connected clients) in step with whichever engine currently owns the
// audio session.
package nowplaying

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/playback"
)

// Descriptor is the rendered now-playing metadata pushed to a surface.
type Descriptor struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Playing  bool    `json:"playing"`
	Progress float64 `json:"progress"` // 0..1
}

// Surface is an external now-playing target. Implementations must tolerate
// repeated Update calls with identical descriptors.
type Surface interface {
	Update(d Descriptor) error
	Clear() error
}

// Sync subscribes to the playback bus and mirrors the state of the active
// kind onto the surface. Surface failures are logged and swallowed so a
// flaky client can never disturb playback.
type Sync struct {
	surface     Surface
	unsubscribe func()

	mu     sync.Mutex
	active catalog.MediaKind
	shown  bool
}

// NewSync starts mirroring bus events onto surface. Call Stop to detach.
func NewSync(bus *playback.Bus, surface Surface) *Sync {
	s := &Sync{surface: surface, active: catalog.KindMusic}
	s.unsubscribe = bus.Subscribe(s.onEvent)
	return s
}

// Stop detaches the sync from the bus.
func (s *Sync) Stop() {
	s.unsubscribe()
}

func (s *Sync) onEvent(e playback.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := e.(type) {
	case playback.KindActivated:
		s.active = ev.Kind
	case playback.StateChanged:
		if ev.Kind != s.active {
			return
		}
		if ev.Track == nil || ev.State == playback.StateIdle {
			s.clearLocked()
			return
		}
		s.updateLocked(ev.Track, ev.State == playback.StatePlaying, ev.PositionSec)
	case playback.TrackStarted:
		if ev.Kind != s.active {
			return
		}
		s.updateLocked(ev.Track, true, 0)
	}
}

func (s *Sync) updateLocked(track *catalog.Track, playing bool, positionSec float64) {
	d := Descriptor{
		Title:   track.Title,
		Artist:  track.Artist,
		Playing: playing,
	}
	if track.DurationSec > 0 {
		d.Progress = positionSec / track.DurationSec
	}
	if d.Progress < 0 {
		d.Progress = 0
	}
	if d.Progress > 1 {
		d.Progress = 1
	}

	if err := s.surface.Update(d); err != nil {
		log.Debug().Err(err).Str("title", d.Title).Msg("Now-playing surface update failed")
	}
	s.shown = true
}

func (s *Sync) clearLocked() {
	if !s.shown {
		return
	}
	if err := s.surface.Clear(); err != nil {
		log.Debug().Err(err).Msg("Now-playing surface clear failed")
	}
	s.shown = false
}
