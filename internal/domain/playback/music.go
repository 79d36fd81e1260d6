package playback

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
)

// snapshotKey is the kv key holding the restore-on-launch snapshot.
const snapshotKey = "music-player-state"

// previousRestartWindowSec: SkipPrevious within this window restarts the
// current track; past it, it moves to the prior one.
const previousRestartWindowSec = 3.0

// MusicEngine is the state machine for song playback: queue management,
// transport controls, and position persistence.
//
// States: idle -> loaded -> playing <-> paused -> idle (queue exhaustion or
// explicit clear). All mutation happens on the command path; observers only
// read through Status().
type MusicEngine struct {
	out      Output
	catalog  catalog.Store
	settings *kv.Store
	bus      *Bus
	coord    *Coordinator
	loop     bool

	mu       sync.Mutex
	state    State
	queue    []*catalog.Track
	index    int
	position float64
	shuffle  bool
}

// MusicOption configures a MusicEngine.
type MusicOption func(*MusicEngine)

// WithLoopQueue makes the queue wrap around instead of stopping at the end.
func WithLoopQueue(loop bool) MusicOption {
	return func(e *MusicEngine) {
		e.loop = loop
	}
}

// NewMusicEngine creates the music engine and registers it with the
// coordinator.
func NewMusicEngine(out Output, store catalog.Store, settings *kv.Store, bus *Bus, coord *Coordinator, opts ...MusicOption) *MusicEngine {
	e := &MusicEngine{
		out:      out,
		catalog:  store,
		settings: settings,
		bus:      bus,
		coord:    coord,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	coord.register(catalog.KindMusic, e)
	return e
}

// MusicStatus is a read-only projection of the engine state.
type MusicStatus struct {
	State       State
	Track       *catalog.Track
	Index       int
	QueueLen    int
	PositionSec float64
	Shuffle     bool
	Loop        bool
}

// Play replaces the current session with queue and starts playback at
// startIndex. An out-of-range startIndex is a no-op.
func (e *MusicEngine) Play(queue []*catalog.Track, startIndex int) {
	if startIndex < 0 || startIndex >= len(queue) {
		log.Warn().Int("index", startIndex).Int("queueLen", len(queue)).Msg("Play index out of range")
		return
	}

	e.coord.Activate(catalog.KindMusic)

	e.mu.Lock()
	e.queue = append([]*catalog.Track(nil), queue...)
	e.index = startIndex
	e.position = 0
	events := e.startCurrentLocked(0)
	e.mu.Unlock()

	e.publish(events)
}

// Pause pauses playback. No-op without an active session.
func (e *MusicEngine) Pause() {
	e.mu.Lock()
	events := e.pauseLocked()
	e.saveStateLocked()
	e.mu.Unlock()
	e.publish(events)
}

// Resume continues a paused session. It re-activates the music kind so a
// podcast playing in the meantime is paused first.
func (e *MusicEngine) Resume() {
	e.mu.Lock()
	resumable := e.state == StatePaused || e.state == StateLoaded
	e.mu.Unlock()
	if !resumable {
		return
	}

	e.coord.Activate(catalog.KindMusic)

	e.mu.Lock()
	var events []Event
	switch e.state {
	case StatePaused:
		if err := e.out.Resume(); err != nil {
			log.Warn().Err(err).Msg("Failed to resume output")
		}
		e.state = StatePlaying
		events = append(events, e.stateChangedLocked())
	case StateLoaded:
		// Restored session: start the current track from its saved position.
		events = e.startCurrentLocked(e.position)
	}
	e.mu.Unlock()
	e.publish(events)
}

// SkipNext advances the queue. At the end it either wraps (loop mode) or
// stops and resets to idle.
func (e *MusicEngine) SkipNext() {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	events := e.advanceLocked()
	e.mu.Unlock()
	e.publish(events)
}

// OnSourceFinished advances the queue after the output reached the end of
// the current track on its own. Commanded pauses and stops move the engine
// out of the playing state first, so they never arrive here.
func (e *MusicEngine) OnSourceFinished() {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	events := e.advanceLocked()
	e.saveStateLocked()
	e.mu.Unlock()
	e.publish(events)
}

// SkipPrevious moves to the prior track. Within the first few seconds of a
// track it restarts the same track instead, so a quick double-press does
// not jump two tracks back.
func (e *MusicEngine) SkipPrevious() {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}

	if e.elapsedLocked() >= previousRestartWindowSec {
		if e.index > 0 {
			e.index--
		} else if e.loop {
			e.index = len(e.queue) - 1
		}
	}
	events := e.startCurrentLocked(0)
	e.mu.Unlock()
	e.publish(events)
}

// Seek moves within the current track. The requested position is clamped
// into [0, duration].
func (e *MusicEngine) Seek(sec float64) {
	e.mu.Lock()
	if e.state != StatePlaying && e.state != StatePaused {
		e.mu.Unlock()
		return
	}

	e.position = e.clampLocked(sec)
	if err := e.out.SeekSec(e.position); err != nil {
		log.Warn().Err(err).Float64("position", e.position).Msg("Seek failed")
	}
	events := []Event{e.stateChangedLocked()}
	e.mu.Unlock()
	e.publish(events)
}

// Clear stops playback and destroys the session.
func (e *MusicEngine) Clear() {
	e.mu.Lock()
	events := e.resetLocked()
	e.mu.Unlock()
	e.publish(events)
}

// SetShuffle toggles random track advance.
func (e *MusicEngine) SetShuffle(on bool) {
	e.mu.Lock()
	e.shuffle = on
	e.mu.Unlock()
}

// SetLoop toggles queue wraparound.
func (e *MusicEngine) SetLoop(on bool) {
	e.mu.Lock()
	e.loop = on
	e.mu.Unlock()
}

// IsPlaying reports whether the engine currently owns active playback.
func (e *MusicEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePlaying
}

// Status returns a snapshot of the engine state.
func (e *MusicEngine) Status() MusicStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := MusicStatus{
		State:       e.state,
		Index:       e.index,
		QueueLen:    len(e.queue),
		PositionSec: e.elapsedLocked(),
		Shuffle:     e.shuffle,
		Loop:        e.loop,
	}
	if e.index >= 0 && e.index < len(e.queue) {
		s.Track = e.queue[e.index]
	}
	return s
}

// Queue returns the current session's queue.
func (e *MusicEngine) Queue() []*catalog.Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*catalog.Track, len(e.queue))
	copy(out, e.queue)
	return out
}

// pauseForCoordinator implements the coordinator contract.
func (e *MusicEngine) pauseForCoordinator() {
	e.mu.Lock()
	events := e.pauseLocked()
	e.mu.Unlock()
	e.publish(events)
}

// musicSnapshot is the persisted restore-on-launch shape.
type musicSnapshot struct {
	QueueIDs    []string `json:"queueIds"`
	Index       int      `json:"index"`
	PositionSec float64  `json:"position"`
	IsPlaying   bool     `json:"isPlaying"`
}

// SaveState persists the {queue ids, index, position, playing} snapshot.
// Best effort: failures are logged, never surfaced.
func (e *MusicEngine) SaveState() {
	e.mu.Lock()
	e.saveStateLocked()
	e.mu.Unlock()
}

// RestoreState reconstructs the session from the persisted snapshot. Tracks
// whose backing file no longer resolves are dropped with a log; index and
// position are adjusted to the nearest surviving track. The restored session
// is loaded, not playing. Playback waits for an explicit Resume.
func (e *MusicEngine) RestoreState() {
	var snap musicSnapshot
	found, err := e.settings.GetJSON(kv.BucketPlayer, snapshotKey, &snap)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read player snapshot")
		return
	}
	if !found || len(snap.QueueIDs) == 0 {
		return
	}

	var queue []*catalog.Track
	newIndex := -1
	currentKept := false

	for i, id := range snap.QueueIDs {
		t, err := e.catalog.Track(id)
		if err != nil || t == nil {
			log.Debug().Str("id", id).Msg("Snapshot track missing from catalog, dropping")
			continue
		}
		if _, _, err := t.Source.Resolve(false); err != nil {
			log.Info().Str("id", id).Str("title", t.Title).Msg("Snapshot track no longer resolvable, dropping")
			continue
		}
		if i == snap.Index {
			newIndex = len(queue)
			currentKept = true
		} else if i > snap.Index && newIndex == -1 {
			// Current track dropped: land on the next surviving one.
			newIndex = len(queue)
		}
		queue = append(queue, t)
	}

	if len(queue) == 0 {
		log.Info().Msg("No snapshot tracks survived, starting idle")
		return
	}
	if newIndex < 0 || newIndex >= len(queue) {
		newIndex = len(queue) - 1
	}

	e.mu.Lock()
	e.queue = queue
	e.index = newIndex
	e.state = StateLoaded
	if currentKept {
		e.position = e.clampLocked(snap.PositionSec)
	} else {
		e.position = 0
	}
	events := []Event{e.stateChangedLocked()}
	e.mu.Unlock()

	log.Info().
		Int("tracks", len(queue)).
		Int("index", newIndex).
		Float64("position", snap.PositionSec).
		Msg("Restored player session")
	e.publish(events)
}

// --- internals (mu held) ---

// startCurrentLocked begins playback of queue[index] at fromSec, auto-skipping
// tracks whose source cannot be resolved or loaded. A broken track never
// blocks the queue; when every remaining track fails, the session resets to
// idle. The seek happens before events are built, so observers never see a
// zero position on a mid-track resume.
func (e *MusicEngine) startCurrentLocked(fromSec float64) []Event {
	attempts := 0
	for e.index >= 0 && e.index < len(e.queue) && attempts < len(e.queue) {
		attempts++
		t := e.queue[e.index]

		uri, _, err := t.Source.Resolve(false)
		if err == nil {
			err = e.out.Load(uri)
		}
		if err != nil {
			log.Warn().Err(err).Str("title", t.Title).Msg("Track unplayable, skipping")
			// The saved position belongs to the skipped track.
			fromSec = 0
			if !e.stepIndexLocked() {
				break
			}
			continue
		}

		e.state = StatePlaying
		e.position = 0
		if fromSec > 0 {
			e.position = e.clampLocked(fromSec)
			if err := e.out.SeekSec(e.position); err != nil {
				log.Warn().Err(err).Msg("Failed to seek restored position")
				e.position = 0
			}
		}
		e.recordPlayLocked(t)
		return []Event{
			TrackStarted{Kind: catalog.KindMusic, Track: t},
			e.stateChangedLocked(),
		}
	}

	return e.resetLocked()
}

// stepIndexLocked advances the index for auto-skip and SkipNext.
// Returns false when the queue is exhausted.
func (e *MusicEngine) stepIndexLocked() bool {
	if e.shuffle && len(e.queue) > 1 {
		next := rand.Intn(len(e.queue) - 1)
		if next >= e.index {
			next++
		}
		e.index = next
		return true
	}

	e.index++
	if e.index >= len(e.queue) {
		if e.loop {
			e.index = 0
			return true
		}
		return false
	}
	return true
}

func (e *MusicEngine) advanceLocked() []Event {
	if !e.stepIndexLocked() {
		return e.resetLocked()
	}
	return e.startCurrentLocked(0)
}

func (e *MusicEngine) pauseLocked() []Event {
	if e.state != StatePlaying {
		return nil
	}
	e.position = e.elapsedLocked()
	if err := e.out.Pause(); err != nil {
		log.Warn().Err(err).Msg("Failed to pause output")
	}
	e.state = StatePaused
	return []Event{e.stateChangedLocked()}
}

func (e *MusicEngine) resetLocked() []Event {
	if err := e.out.Stop(); err != nil {
		log.Debug().Err(err).Msg("Failed to stop output")
	}
	e.queue = nil
	e.index = 0
	e.position = 0
	e.state = StateIdle
	return []Event{e.stateChangedLocked()}
}

// elapsedLocked returns the live position while playing, falling back to
// the last known position.
func (e *MusicEngine) elapsedLocked() float64 {
	if e.state == StatePlaying {
		if sec, err := e.out.Elapsed(); err == nil {
			e.position = e.clampLocked(sec)
		}
	}
	return e.position
}

// clampLocked bounds a position into [0, duration] of the current track.
func (e *MusicEngine) clampLocked(sec float64) float64 {
	if sec < 0 {
		return 0
	}
	if e.index >= 0 && e.index < len(e.queue) {
		if d := e.queue[e.index].DurationSec; d > 0 && sec > d {
			return d
		}
	}
	return sec
}

// recordPlayLocked bumps play statistics. Persistence is fire-and-forget.
func (e *MusicEngine) recordPlayLocked(t *catalog.Track) {
	t.PlayCount++
	t.LastPlayed = time.Now()
	go func(t catalog.Track) {
		if err := e.catalog.Save(&t); err != nil {
			log.Warn().Err(err).Str("id", t.ID).Msg("Failed to persist play stats")
		}
	}(*t)
}

func (e *MusicEngine) saveStateLocked() {
	ids := make([]string, len(e.queue))
	for i, t := range e.queue {
		ids[i] = t.ID
	}
	snap := musicSnapshot{
		QueueIDs:    ids,
		Index:       e.index,
		PositionSec: e.elapsedLocked(),
		IsPlaying:   e.state == StatePlaying,
	}
	if err := e.settings.PutJSON(kv.BucketPlayer, snapshotKey, snap); err != nil {
		log.Warn().Err(err).Msg("Failed to persist player snapshot")
	}
}

func (e *MusicEngine) stateChangedLocked() Event {
	var t *catalog.Track
	if e.state != StateIdle && e.index >= 0 && e.index < len(e.queue) {
		t = e.queue[e.index]
	}
	return StateChanged{
		Kind:        catalog.KindMusic,
		State:       e.state,
		Track:       t,
		PositionSec: e.position,
	}
}

func (e *MusicEngine) publish(events []Event) {
	for _, ev := range events {
		e.bus.Publish(ev)
	}
}
