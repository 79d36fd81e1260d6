package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

// completionThreshold marks an episode finished once playback passes this
// fraction of its duration.
const completionThreshold = 0.95

// PodcastEngine is the state machine for episode playback. It mirrors the
// music engine with episode semantics: a downloaded copy is preferred over
// the stream URL, the resume position is persisted on every pause and
// checkpoint, and episodes are marked completed near the end. It keeps its
// own current episode independent of the music queue.
type PodcastEngine struct {
	out     Output
	catalog catalog.Store
	bus     *Bus
	coord   *Coordinator

	mu       sync.Mutex
	state    State
	episode  *catalog.Track
	position float64
}

// NewPodcastEngine creates the podcast engine and registers it with the
// coordinator.
func NewPodcastEngine(out Output, store catalog.Store, bus *Bus, coord *Coordinator) *PodcastEngine {
	e := &PodcastEngine{
		out:     out,
		catalog: store,
		bus:     bus,
		coord:   coord,
		state:   StateIdle,
	}
	coord.register(catalog.KindPodcast, e)
	return e
}

// PodcastStatus is a read-only projection of the engine state.
type PodcastStatus struct {
	State       State
	Episode     *catalog.Track
	PositionSec float64
}

// Play starts (or resumes from its saved position) the given episode.
// An episode with no reachable source is a logged no-op; podcast playback
// has no queue to fall back to.
func (e *PodcastEngine) Play(episode *catalog.Track) {
	if episode == nil {
		return
	}

	uri, local, err := episode.Source.Resolve(true)
	if err != nil {
		log.Warn().Str("title", episode.Title).Msg("Episode has no playable source")
		return
	}

	e.coord.Activate(catalog.KindPodcast)

	e.mu.Lock()
	if err := e.out.Load(uri); err != nil {
		log.Error().Err(err).Str("title", episode.Title).Msg("Failed to load episode")
		e.mu.Unlock()
		return
	}

	e.episode = episode
	e.state = StatePlaying
	e.position = 0

	// Resume mid-episode unless it was finished.
	if episode.PositionSec > 0 && !episode.Completed {
		e.position = e.clampLocked(episode.PositionSec)
		if err := e.out.SeekSec(e.position); err != nil {
			log.Warn().Err(err).Msg("Failed to seek resume position")
			e.position = 0
		}
	}

	episode.PlayCount++
	episode.LastPlayed = time.Now()
	e.persistLocked()

	events := []Event{
		TrackStarted{Kind: catalog.KindPodcast, Track: episode},
		e.stateChangedLocked(),
	}
	e.mu.Unlock()

	log.Info().
		Str("title", episode.Title).
		Bool("downloaded", local).
		Float64("resumeAt", episode.PositionSec).
		Msg("Playing episode")
	e.publish(events)
}

// Pause pauses playback and persists the resume position.
func (e *PodcastEngine) Pause() {
	e.mu.Lock()
	events := e.pauseLocked()
	e.mu.Unlock()
	e.publish(events)
}

// Resume continues a paused episode, re-claiming the audio session.
func (e *PodcastEngine) Resume() {
	e.mu.Lock()
	resumable := e.state == StatePaused
	e.mu.Unlock()
	if !resumable {
		return
	}

	e.coord.Activate(catalog.KindPodcast)

	e.mu.Lock()
	var events []Event
	if e.state == StatePaused {
		if err := e.out.Resume(); err != nil {
			log.Warn().Err(err).Msg("Failed to resume output")
		}
		e.state = StatePlaying
		events = append(events, e.stateChangedLocked())
	}
	e.mu.Unlock()
	e.publish(events)
}

// Seek moves within the current episode, clamped into [0, duration].
func (e *PodcastEngine) Seek(sec float64) {
	e.mu.Lock()
	if e.state != StatePlaying && e.state != StatePaused {
		e.mu.Unlock()
		return
	}

	e.position = e.clampLocked(sec)
	if err := e.out.SeekSec(e.position); err != nil {
		log.Warn().Err(err).Float64("position", e.position).Msg("Seek failed")
	}
	e.syncEpisodeLocked()
	events := []Event{e.stateChangedLocked()}
	e.mu.Unlock()
	e.publish(events)
}

// Stop ends playback, persisting the final position.
func (e *PodcastEngine) Stop() {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	e.position = e.elapsedLocked()
	e.syncEpisodeLocked()
	if err := e.out.Stop(); err != nil {
		log.Debug().Err(err).Msg("Failed to stop output")
	}
	e.episode = nil
	e.position = 0
	e.state = StateIdle
	events := []Event{e.stateChangedLocked()}
	e.mu.Unlock()
	e.publish(events)
}

// OnSourceFinished finalizes the episode after the output reached its end on
// its own: the position is pinned to the full duration so the completed flag
// flips, then the session resets to idle.
func (e *PodcastEngine) OnSourceFinished() {
	e.mu.Lock()
	if e.state != StatePlaying || e.episode == nil {
		e.mu.Unlock()
		return
	}
	if e.episode.DurationSec > 0 {
		e.position = e.episode.DurationSec
	}
	e.syncEpisodeLocked()
	log.Info().Str("title", e.episode.Title).Msg("Episode finished")
	e.episode = nil
	e.position = 0
	e.state = StateIdle
	events := []Event{e.stateChangedLocked()}
	e.mu.Unlock()
	e.publish(events)
}

// Checkpoint persists the live resume position. Wired to a periodic tick
// and to background transitions so a crash loses at most a few seconds.
func (e *PodcastEngine) Checkpoint() {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.position = e.elapsedLocked()
	e.syncEpisodeLocked()
	e.mu.Unlock()
}

// IsPlaying reports whether the engine currently owns active playback.
func (e *PodcastEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePlaying
}

// Status returns a snapshot of the engine state.
func (e *PodcastEngine) Status() PodcastStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PodcastStatus{
		State:       e.state,
		Episode:     e.episode,
		PositionSec: e.elapsedLocked(),
	}
}

// pauseForCoordinator implements the coordinator contract.
func (e *PodcastEngine) pauseForCoordinator() {
	e.mu.Lock()
	events := e.pauseLocked()
	e.mu.Unlock()
	e.publish(events)
}

// --- internals (mu held) ---

func (e *PodcastEngine) pauseLocked() []Event {
	if e.state != StatePlaying {
		return nil
	}
	e.position = e.elapsedLocked()
	if err := e.out.Pause(); err != nil {
		log.Warn().Err(err).Msg("Failed to pause output")
	}
	e.state = StatePaused
	e.syncEpisodeLocked()
	return []Event{e.stateChangedLocked()}
}

// syncEpisodeLocked copies the live position onto the episode record, flips
// the completed flag past the threshold, and persists best-effort.
func (e *PodcastEngine) syncEpisodeLocked() {
	if e.episode == nil {
		return
	}
	e.episode.PositionSec = e.position
	if e.episode.DurationSec > 0 && e.position >= e.episode.DurationSec*completionThreshold {
		if !e.episode.Completed {
			log.Info().Str("title", e.episode.Title).Msg("Episode completed")
		}
		e.episode.Completed = true
	}
	e.persistLocked()
}

func (e *PodcastEngine) persistLocked() {
	ep := *e.episode
	go func() {
		if err := e.catalog.Save(&ep); err != nil {
			log.Warn().Err(err).Str("id", ep.ID).Msg("Failed to persist episode state")
		}
	}()
}

func (e *PodcastEngine) elapsedLocked() float64 {
	if e.state == StatePlaying {
		if sec, err := e.out.Elapsed(); err == nil {
			e.position = e.clampLocked(sec)
		}
	}
	return e.position
}

func (e *PodcastEngine) clampLocked(sec float64) float64 {
	if sec < 0 {
		return 0
	}
	if e.episode != nil && e.episode.DurationSec > 0 && sec > e.episode.DurationSec {
		return e.episode.DurationSec
	}
	return sec
}

func (e *PodcastEngine) stateChangedLocked() Event {
	return StateChanged{
		Kind:        catalog.KindPodcast,
		State:       e.state,
		Track:       e.episode,
		PositionSec: e.position,
	}
}

func (e *PodcastEngine) publish(events []Event) {
	for _, ev := range events {
		e.bus.Publish(ev)
	}
}
