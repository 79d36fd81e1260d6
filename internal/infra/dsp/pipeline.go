// Package dsp provides the production equalizer graph: a biquad filter
// pipeline rendered as a config file consumed by the audio output's DSP
// stage, CamillaDSP style.
package dsp

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/equalizer"
)

const (
	pipelineFile = "eq_pipeline.json"
	reloadFile   = "eq_pipeline.reload"

	// defaultQ is the filter bandwidth shared by every peaking stage.
	defaultQ = 1.0
)

// Biquad holds normalized second-order filter coefficients (a0 == 1).
type Biquad struct {
	B0 float64 `json:"b0"`
	B1 float64 `json:"b1"`
	B2 float64 `json:"b2"`
	A1 float64 `json:"a1"`
	A2 float64 `json:"a2"`
}

// filterStage is one serialized pipeline entry.
type filterStage struct {
	FrequencyHz float64 `json:"frequencyHz"`
	GainDB      float64 `json:"gainDb"`
	Q           float64 `json:"q"`
	Coeffs      Biquad  `json:"coeffs"`
	Bypassed    bool    `json:"bypassed"`
}

type pipelineConfig struct {
	SampleRate int           `json:"sampleRate"`
	Enabled    bool          `json:"enabled"`
	Filters    []filterStage `json:"filters"`
	UpdatedAt  string        `json:"updatedAt"`
}

// Pipeline implements equalizer.Graph by writing the filter chain to disk
// and signalling the DSP stage to reload. Bypass keeps every stage in the
// file so re-engaging never rebuilds the chain.
type Pipeline struct {
	dir        string
	sampleRate int
}

// NewPipeline creates a pipeline writer rooted at dir.
func NewPipeline(dir string, sampleRate int) *Pipeline {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Pipeline{dir: dir, sampleRate: sampleRate}
}

// Apply renders the band configuration into the pipeline config and touches
// the reload trigger.
func (p *Pipeline) Apply(bands []equalizer.Band, enabled bool) error {
	cfg := pipelineConfig{
		SampleRate: p.sampleRate,
		Enabled:    enabled,
		UpdatedAt:  time.Now().Format(time.RFC3339),
	}
	for _, b := range bands {
		cfg.Filters = append(cfg.Filters, filterStage{
			FrequencyHz: b.FrequencyHz,
			GainDB:      b.GainDB,
			Q:           defaultQ,
			Coeffs:      PeakingCoefficients(b.FrequencyHz, b.GainDB, defaultQ, float64(p.sampleRate)),
			Bypassed:    !enabled,
		})
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("failed to create dsp directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pipeline: %w", err)
	}
	path := filepath.Join(p.dir, pipelineFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pipeline: %w", err)
	}

	// Touching the trigger makes the DSP stage pick up the new chain.
	trigger := filepath.Join(p.dir, reloadFile)
	if err := os.WriteFile(trigger, []byte{}, 0644); err != nil {
		log.Warn().Err(err).Msg("Failed to touch DSP reload trigger")
	}

	log.Debug().Str("path", path).Bool("enabled", enabled).Int("stages", len(cfg.Filters)).Msg("Equalizer pipeline written")
	return nil
}

// PeakingCoefficients computes normalized biquad coefficients for a peaking
// EQ stage (Audio EQ Cookbook, R. Bristow-Johnson).
func PeakingCoefficients(freqHz, gainDB, q, sampleRate float64) Biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freqHz / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	b0 := 1 + alpha*a
	b1 := -2 * cosW0
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosW0
	a2 := 1 - alpha/a

	return Biquad{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}
