package story

import (
	"bytes"
	"encoding/json"
	"strings"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
)

// Mode selects who evaluates preconditions.
type Mode string

// Evaluation modes.
const (
	// ModeDeterministic evaluates typed conditions only; natural-language
	// conditions are unsatisfied without consulting the judge.
	ModeDeterministic Mode = "deterministic"
	// ModeAIAssisted evaluates typed conditions first, then delegates the
	// remaining natural-language conditions to the judge.
	ModeAIAssisted Mode = "ai_assisted"
	// ModeAIPrimary delegates every condition to the judge, serializing
	// typed conditions into natural-language form.
	ModeAIPrimary Mode = "ai_primary"
)

// PacingPreference is the author-chosen target intensity band.
type PacingPreference string

// Pacing preferences and their target intensities.
const (
	PacingCalm     PacingPreference = "calm"
	PacingBalanced PacingPreference = "balanced"
	PacingIntense  PacingPreference = "intense"
)

// TargetIntensity returns the intensity the preference steers toward.
func (p PacingPreference) TargetIntensity() float64 {
	switch p {
	case PacingCalm:
		return 0.3
	case PacingIntense:
		return 0.7
	default:
		return 0.5
	}
}

// DirectorConfig is the entire tuning surface for storylet selection.
// No environment variable or global affects selection.
type DirectorConfig struct {
	EventsPerTick          int              `json:"events_per_tick"`
	DiversityPenalty       float64          `json:"diversity_penalty"`
	DiversityWindow        int              `json:"diversity_window"`
	PacingScale            float64          `json:"pacing_scale"`
	PacingPreference       PacingPreference `json:"pacing_preference"`
	IntensityDecay         float64          `json:"intensity_decay"`
	FallbackAfterIdleTicks int              `json:"fallback_after_idle_ticks"`
	Mode                   Mode             `json:"mode"`
	RNGSeed                int64            `json:"rng_seed"`
}

// DefaultConfig returns the director defaults.
func DefaultConfig() DirectorConfig {
	return DirectorConfig{
		EventsPerTick:          2,
		DiversityPenalty:       0.5,
		DiversityWindow:        5,
		PacingScale:            0.5,
		PacingPreference:       PacingBalanced,
		IntensityDecay:         0.1,
		FallbackAfterIdleTicks: 2,
		Mode:                   ModeDeterministic,
	}
}

// DecodeConfig decodes a serialized config. Unknown keys are a validation
// error, and the decoded config is validated before being returned.
func DecodeConfig(data []byte) (DirectorConfig, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	cfg := DefaultConfig()
	if err := decoder.Decode(&cfg); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return DirectorConfig{}, apperrors.Wrap(apperrors.CodeConfigUnknownField, err, "decode director config")
		}
		return DirectorConfig{}, apperrors.Wrap(apperrors.CodeConfigInvalidField, err, "decode director config")
	}
	if err := cfg.Validate(); err != nil {
		return DirectorConfig{}, err
	}
	return cfg, nil
}

// Validate checks every field against its documented range.
func (c DirectorConfig) Validate() error {
	if c.EventsPerTick < 0 {
		return apperrors.New(apperrors.CodeConfigInvalidField, "events_per_tick must be >= 0, got %d", c.EventsPerTick)
	}
	if c.DiversityPenalty < 0 || c.DiversityPenalty > 1 {
		return apperrors.New(apperrors.CodeConfigInvalidField, "diversity_penalty must be in [0, 1], got %g", c.DiversityPenalty)
	}
	if c.DiversityWindow < 0 {
		return apperrors.New(apperrors.CodeConfigInvalidField, "diversity_window must be >= 0, got %d", c.DiversityWindow)
	}
	if c.PacingScale < 0 || c.PacingScale > 1 {
		return apperrors.New(apperrors.CodeConfigInvalidField, "pacing_scale must be in [0, 1], got %g", c.PacingScale)
	}
	switch c.PacingPreference {
	case PacingCalm, PacingBalanced, PacingIntense:
	default:
		return apperrors.New(apperrors.CodeConfigInvalidPacing, "unknown pacing_preference %q", c.PacingPreference)
	}
	if c.IntensityDecay < 0 || c.IntensityDecay > 1 {
		return apperrors.New(apperrors.CodeConfigInvalidField, "intensity_decay must be in [0, 1], got %g", c.IntensityDecay)
	}
	if c.FallbackAfterIdleTicks < 0 {
		return apperrors.New(apperrors.CodeConfigInvalidField, "fallback_after_idle_ticks must be >= 0, got %d", c.FallbackAfterIdleTicks)
	}
	switch c.Mode {
	case ModeDeterministic, ModeAIAssisted, ModeAIPrimary:
	default:
		return apperrors.New(apperrors.CodeConfigInvalidMode, "unknown mode %q", c.Mode)
	}
	return nil
}
