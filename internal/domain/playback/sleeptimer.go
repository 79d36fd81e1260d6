package playback

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SleepTimer is a single one-shot countdown. It ticks once per second to
// keep the displayed remaining time current and fires its completion
// callback exactly once when the deadline passes. It is deliberately not
// persisted: a process restart disarms it.
type SleepTimer struct {
	now  func() time.Time
	tick time.Duration

	mu       sync.Mutex
	deadline time.Time
	timer    *time.Timer
	ticker   *time.Ticker
	done     chan struct{}
	armed    bool
}

// TimerOption configures a SleepTimer.
type TimerOption func(*SleepTimer)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) TimerOption {
	return func(t *SleepTimer) {
		t.now = now
	}
}

// WithTickInterval overrides the one-second display tick. Used by tests.
func WithTickInterval(d time.Duration) TimerOption {
	return func(t *SleepTimer) {
		t.tick = d
	}
}

// NewSleepTimer creates an inert timer.
func NewSleepTimer(opts ...TimerOption) *SleepTimer {
	t := &SleepTimer{
		now:  time.Now,
		tick: time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start arms the countdown for the given number of minutes, cancelling any
// timer already running. onComplete fires exactly once, from the timer's
// goroutine, when the deadline passes.
func (t *SleepTimer) Start(minutes int, onComplete func()) {
	t.StartFor(time.Duration(minutes)*time.Minute, onComplete)
}

// StartFor arms the countdown for an arbitrary duration.
func (t *SleepTimer) StartFor(d time.Duration, onComplete func()) {
	t.mu.Lock()
	t.stopLocked()

	t.deadline = t.now().Add(d)
	t.armed = true
	t.done = make(chan struct{})
	done := t.done

	t.ticker = time.NewTicker(t.tick)
	ticker := t.ticker

	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if !t.armed || t.done != done {
			t.mu.Unlock()
			return
		}
		t.stopLocked()
		t.mu.Unlock()

		log.Info().Msg("Sleep timer fired")
		onComplete()
	})
	t.mu.Unlock()

	// Display tick: nothing to compute here beyond keeping Remaining()
	// observers on a heartbeat; the channel drains until stop.
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	log.Info().Dur("duration", d).Msg("Sleep timer armed")
}

// Stop cancels the countdown and resets to inert. The completion callback
// will not fire after Stop returns.
func (t *SleepTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed {
		log.Info().Msg("Sleep timer cancelled")
	}
	t.stopLocked()
}

// stopLocked tears down the running countdown (mu held).
func (t *SleepTimer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	t.armed = false
	t.deadline = time.Time{}
}

// Armed reports whether a countdown is running.
func (t *SleepTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// RemainingMinutes returns the minutes left, rounded up, or 0 when inert.
func (t *SleepTimer) RemainingMinutes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return 0
	}
	left := t.deadline.Sub(t.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}
