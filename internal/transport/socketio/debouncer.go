package socketio

import (
	"sync"
	"time"

	"github.com/lyrebird-audio/lyrebird/internal/domain/playback"
)

// BroadcastDebouncer collapses rapid playback events into batched
// broadcasts. Several events within the debounce window result in a single
// broadcast for each affected type (state and/or now-playing).
type BroadcastDebouncer struct {
	window    time.Duration
	stateCb   func()
	nowPlayCb func()

	mu          sync.Mutex
	pendState   bool
	pendNowPlay bool
	timer       *time.Timer
	stopped     bool
}

// NewBroadcastDebouncer creates a debouncer with the given window duration.
// stateCb fires for any playback event; nowPlayCb additionally fires when
// the playing track changed.
func NewBroadcastDebouncer(window time.Duration, stateCb, nowPlayCb func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:    window,
		stateCb:   stateCb,
		nowPlayCb: nowPlayCb,
	}
}

// Trigger records a playback event. The broadcast callbacks are deferred
// until the debounce window elapses without further triggers.
func (d *BroadcastDebouncer) Trigger(e playback.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pendState = true
	switch e.(type) {
	case playback.TrackStarted, playback.KindActivated:
		d.pendNowPlay = true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires callbacks for any pending flags and resets them.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	doState := d.pendState
	doNowPlay := d.pendNowPlay
	d.pendState = false
	d.pendNowPlay = false
	d.mu.Unlock()

	if doState && d.stateCb != nil {
		d.stateCb()
	}
	if doNowPlay && d.nowPlayCb != nil {
		d.nowPlayCb()
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendState = false
	d.pendNowPlay = false
}
