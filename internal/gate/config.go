package gate

import (
	"math"
)

// GateConfig holds the per-call gating parameters. Build one with
// NewGateConfig; the zero value is not valid.
type GateConfig struct {
	VoltThreshold   float64 // Minimum magnitude counted as signal (PCM units)
	PaddingSeconds  float64 // Guard band on each side of a signal region
	AttackReleaseMs float64 // Ramp length for opening and closing the gate
	Framerate       int     // Frames per second
}

// NewGateConfig validates the parameters and returns an immutable config.
// Nothing is clamped: any out-of-range value is a *ConfigError.
func NewGateConfig(voltThreshold, paddingSeconds, attackReleaseMs float64, framerate int) (GateConfig, error) {
	cfg := GateConfig{
		VoltThreshold:   voltThreshold,
		PaddingSeconds:  paddingSeconds,
		AttackReleaseMs: attackReleaseMs,
		Framerate:       framerate,
	}
	if err := cfg.Validate(); err != nil {
		return GateConfig{}, err
	}
	return cfg, nil
}

// Validate checks every field against its allowed range
func (c GateConfig) Validate() error {
	if c.Framerate <= 0 {
		return &ConfigError{Field: "framerate", Reason: "must be positive"}
	}
	if !finite(c.VoltThreshold) || c.VoltThreshold < 0 {
		return &ConfigError{Field: "volt_threshold", Reason: "must be a finite value >= 0"}
	}
	if !finite(c.PaddingSeconds) || c.PaddingSeconds < 0 {
		return &ConfigError{Field: "padding_seconds", Reason: "must be a finite value >= 0"}
	}
	if !finite(c.AttackReleaseMs) || c.AttackReleaseMs <= 0 {
		return &ConfigError{Field: "attack_release_ms", Reason: "must be a finite value > 0"}
	}
	return nil
}

// PaddingSamples is the guard band width in frames
func (c GateConfig) PaddingSamples() int {
	return int(math.Round(c.PaddingSeconds * float64(c.Framerate)))
}

// RampSamples is the attack/release ramp length in frames, never less than 1
func (c GateConfig) RampSamples() int {
	r := int(math.Round(c.AttackReleaseMs / 1000 * float64(c.Framerate)))
	if r < 1 {
		return 1
	}
	return r
}

// ContextFrames is the overlap a chunk needs on each side so its core region
// gates exactly as it would in a whole-buffer pass.
func (c GateConfig) ContextFrames() int {
	return c.PaddingSamples() + c.RampSamples()
}

// MinChunkFrames is the smallest chunk the stream processor accepts
func (c GateConfig) MinChunkFrames() int {
	return 2*c.ContextFrames() + 1
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
