package dsp_test

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lyrebird-audio/lyrebird/internal/domain/equalizer"
	"github.com/lyrebird-audio/lyrebird/internal/infra/dsp"
)

func TestZeroGainIsIdentityFilter(t *testing.T) {
	c := dsp.PeakingCoefficients(1000, 0, 1.0, 44100)

	if math.Abs(c.B0-1) > 1e-12 {
		t.Errorf("b0 = %v, want 1", c.B0)
	}
	if math.Abs(c.B2-c.A2) > 1e-12 {
		t.Errorf("b2 = %v, a2 = %v, want equal at 0 dB", c.B2, c.A2)
	}
	if math.Abs(c.B1-c.A1) > 1e-12 {
		t.Errorf("b1 = %v, a1 = %v, want equal at 0 dB", c.B1, c.A1)
	}
}

func TestBoostRaisesB0(t *testing.T) {
	boost := dsp.PeakingCoefficients(1000, 6, 1.0, 44100)
	cut := dsp.PeakingCoefficients(1000, -6, 1.0, 44100)

	if boost.B0 <= 1 {
		t.Errorf("boost b0 = %v, want > 1", boost.B0)
	}
	if cut.B0 >= 1 {
		t.Errorf("cut b0 = %v, want < 1", cut.B0)
	}
}

func TestApplyWritesPipelineAndTrigger(t *testing.T) {
	dir := t.TempDir()
	p := dsp.NewPipeline(dir, 44100)

	bands := []equalizer.Band{
		{FrequencyHz: 60, GainDB: 3},
		{FrequencyHz: 1000, GainDB: -2},
	}
	if err := p.Apply(bands, true); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "eq_pipeline.json"))
	if err != nil {
		t.Fatalf("pipeline file not written: %v", err)
	}
	var cfg struct {
		SampleRate int  `json:"sampleRate"`
		Enabled    bool `json:"enabled"`
		Filters    []struct {
			FrequencyHz float64 `json:"frequencyHz"`
			Bypassed    bool    `json:"bypassed"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("pipeline not valid JSON: %v", err)
	}
	if !cfg.Enabled {
		t.Error("expected enabled pipeline")
	}
	if len(cfg.Filters) != 2 {
		t.Fatalf("got %d filters, want 2", len(cfg.Filters))
	}
	if cfg.Filters[0].FrequencyHz != 60 {
		t.Errorf("first filter frequency = %v, want 60", cfg.Filters[0].FrequencyHz)
	}

	if _, err := os.Stat(filepath.Join(dir, "eq_pipeline.reload")); err != nil {
		t.Errorf("reload trigger not written: %v", err)
	}
}

func TestBypassKeepsStagesInFile(t *testing.T) {
	dir := t.TempDir()
	p := dsp.NewPipeline(dir, 44100)

	bands := []equalizer.Band{{FrequencyHz: 400, GainDB: 5}}
	if err := p.Apply(bands, false); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "eq_pipeline.json"))
	if err != nil {
		t.Fatalf("pipeline file not written: %v", err)
	}
	var cfg struct {
		Enabled bool `json:"enabled"`
		Filters []struct {
			GainDB   float64 `json:"gainDb"`
			Bypassed bool    `json:"bypassed"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("pipeline not valid JSON: %v", err)
	}
	if cfg.Enabled {
		t.Error("expected disabled pipeline")
	}
	if len(cfg.Filters) != 1 || !cfg.Filters[0].Bypassed {
		t.Error("expected bypassed stage retained in file")
	}
	if cfg.Filters[0].GainDB != 5 {
		t.Errorf("gain = %v, want 5 preserved through bypass", cfg.Filters[0].GainDB)
	}
}
