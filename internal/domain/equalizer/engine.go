// Package equalizer provides the multi-band equalizer state and its live
// audio-graph binding.
package equalizer

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
)

// Gain bounds in dB.
const (
	MinGainDB = -12.0
	MaxGainDB = 12.0
)

// Persisted settings keys.
const (
	keyEnabled = "equalizer-enabled"
	keyGains   = "equalizer-gains"
)

// BandFrequencies are the center frequencies of the filter stages, in Hz.
var BandFrequencies = []float64{60, 150, 400, 1000, 2400, 15000}

// Band is one filter stage: a center frequency with its gain.
type Band struct {
	FrequencyHz float64 `json:"frequencyHz"`
	GainDB      float64 `json:"gainDb"`
}

// Graph is the live audio processing chain the engine configures. Apply
// replaces every filter stage's parameters; a disabled engine keeps the
// graph intact but bypassed, so re-enabling causes no reconnect glitch.
type Graph interface {
	Apply(bands []Band, enabled bool) error
}

// Presets maps preset names to per-band gains (index = band).
var Presets = map[string][]float64{
	"flat":      {0, 0, 0, 0, 0, 0},
	"rock":      {5, 3, -1, -2, 2, 4},
	"pop":       {-1, 2, 4, 3, 0, -1},
	"jazz":      {3, 1, -1, 0, 2, 3},
	"classical": {4, 2, -2, -2, 0, 3},
	"vocal":     {-2, -1, 2, 4, 3, 0},
}

// Engine owns the equalizer state: per-band gains, the enabled flag, and
// the binding to the live graph. Every change persists synchronously so the
// configuration survives songs and process restarts. The equalizer's
// lifecycle is independent of any playback session.
type Engine struct {
	graph    Graph
	settings *kv.Store

	mu      sync.Mutex
	enabled bool
	gains   []float64
}

// NewEngine creates the engine, loading persisted state and applying it to
// the graph.
func NewEngine(graph Graph, settings *kv.Store) *Engine {
	e := &Engine{
		graph:    graph,
		settings: settings,
		gains:    make([]float64, len(BandFrequencies)),
	}
	e.load()

	e.mu.Lock()
	e.applyLocked()
	e.mu.Unlock()
	return e
}

// SetGain sets one band's gain, clamped into [-12, +12] dB. When the engine
// is enabled the live graph is updated immediately; when disabled the value
// is recorded for later application. Band must be a valid index; callers
// own that contract.
func (e *Engine) SetGain(band int, gainDB float64) {
	if band < 0 || band >= len(BandFrequencies) {
		log.Error().Int("band", band).Msg("Equalizer band out of range")
		return
	}

	e.mu.Lock()
	e.gains[band] = clampGain(gainDB)
	e.persistLocked()
	if e.enabled {
		e.applyLocked()
	}
	e.mu.Unlock()
}

// Gain returns the stored gain for a band.
func (e *Engine) Gain(band int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if band < 0 || band >= len(e.gains) {
		return 0
	}
	return e.gains[band]
}

// ApplyPreset atomically replaces all band gains with the named preset.
func (e *Engine) ApplyPreset(name string) error {
	preset, ok := Presets[name]
	if !ok {
		return fmt.Errorf("unknown equalizer preset %q", name)
	}

	e.mu.Lock()
	for i := range e.gains {
		if i < len(preset) {
			e.gains[i] = clampGain(preset[i])
		}
	}
	e.persistLocked()
	e.applyLocked()
	e.mu.Unlock()

	log.Info().Str("preset", name).Msg("Equalizer preset applied")
	return nil
}

// SetEnabled engages or bypasses the filter stage without tearing down the
// audio graph.
func (e *Engine) SetEnabled(on bool) {
	e.mu.Lock()
	e.enabled = on
	e.persistLocked()
	e.applyLocked()
	e.mu.Unlock()
}

// Toggle flips the bypass flag and returns the new state.
func (e *Engine) Toggle() bool {
	e.mu.Lock()
	e.enabled = !e.enabled
	on := e.enabled
	e.persistLocked()
	e.applyLocked()
	e.mu.Unlock()
	return on
}

// Enabled reports whether the filter stage is engaged.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Bands returns the current band configuration.
func (e *Engine) Bands() []Band {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bandsLocked()
}

func (e *Engine) bandsLocked() []Band {
	bands := make([]Band, len(BandFrequencies))
	for i, f := range BandFrequencies {
		bands[i] = Band{FrequencyHz: f, GainDB: e.gains[i]}
	}
	return bands
}

// applyLocked pushes the current configuration to the live graph. Graph
// failures are logged and dropped so equalizer state never affects transport.
func (e *Engine) applyLocked() {
	if e.graph == nil {
		return
	}
	if err := e.graph.Apply(e.bandsLocked(), e.enabled); err != nil {
		log.Warn().Err(err).Msg("Failed to apply equalizer to audio graph")
	}
}

// persistLocked writes state synchronously so it survives restart.
func (e *Engine) persistLocked() {
	if err := e.settings.PutJSON(kv.BucketSettings, keyEnabled, e.enabled); err != nil {
		log.Warn().Err(err).Msg("Failed to persist equalizer enabled flag")
	}
	if err := e.settings.PutJSON(kv.BucketSettings, keyGains, e.gains); err != nil {
		log.Warn().Err(err).Msg("Failed to persist equalizer gains")
	}
}

func (e *Engine) load() {
	var enabled bool
	if found, err := e.settings.GetJSON(kv.BucketSettings, keyEnabled, &enabled); err == nil && found {
		e.enabled = enabled
	}

	var gains []float64
	if found, err := e.settings.GetJSON(kv.BucketSettings, keyGains, &gains); err == nil && found {
		for i := range e.gains {
			if i < len(gains) {
				e.gains[i] = clampGain(gains[i])
			}
		}
	}
}

func clampGain(db float64) float64 {
	if db < MinGainDB {
		return MinGainDB
	}
	if db > MaxGainDB {
		return MaxGainDB
	}
	return db
}
