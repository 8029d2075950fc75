package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/linuxmatters/jivegate/internal/gate"
	"github.com/linuxmatters/jivegate/internal/labels"
	"gopkg.in/yaml.v3"
)

// Gate defaults
const (
	VoltThreshold   = 0.0  // Raw PCM amplitude; 0 keeps every non-silent frame
	PaddingSeconds  = 1.0  // Kept either side of each loud frame
	AttackReleaseMs = 50.0 // Ramp length at every open/close boundary
)

// Streaming settings
const (
	ChunkFrames = 1 << 20 // Window size per read, overlap included
	Jobs        = 1       // Files gated in parallel
)

// Spectrogram grid used by the training-label generator
const (
	NFFT       = 3208
	Hop        = 641
	PadTo      = 4096
	MaxFreq    = 100.0 // Hz; bins above this are discarded downstream
	SampleRate = 8000  // Rate the spectrogram generator expects
)

// Output naming
const (
	OutputSuffix = "-gated"
	OutputExt    = ".wav"
)

// Settings is the complete tunable configuration. Zero values are meaningful
// (a zero threshold is valid), so presets overlay Defaults() rather than
// replacing it.
type Settings struct {
	VoltThreshold   float64 `yaml:"volt_threshold"`
	PaddingSeconds  float64 `yaml:"padding_seconds"`
	AttackReleaseMs float64 `yaml:"attack_release_ms"`
	ChunkFrames     int     `yaml:"chunk_frames"`
	Jobs            int     `yaml:"jobs"`

	Spectrogram Spectrogram `yaml:"spectrogram"`
}

// Spectrogram describes the frame grid diagnostics and alignment use
type Spectrogram struct {
	NFFT       int     `yaml:"nfft"`
	Hop        int     `yaml:"hop"`
	PadTo      int     `yaml:"pad_to"`
	MaxFreq    float64 `yaml:"max_freq"`
	SampleRate int     `yaml:"sample_rate"`
}

// Defaults returns the built-in settings
func Defaults() Settings {
	return Settings{
		VoltThreshold:   VoltThreshold,
		PaddingSeconds:  PaddingSeconds,
		AttackReleaseMs: AttackReleaseMs,
		ChunkFrames:     ChunkFrames,
		Jobs:            Jobs,
		Spectrogram: Spectrogram{
			NFFT:       NFFT,
			Hop:        Hop,
			PadTo:      PadTo,
			MaxFreq:    MaxFreq,
			SampleRate: SampleRate,
		},
	}
}

// Load reads a YAML preset and overlays it on Defaults(). Keys missing from
// the file keep their default; unknown keys are an error.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read preset %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes YAML preset data over Defaults() and validates the result
func Parse(data []byte) (Settings, error) {
	s := Defaults()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, err
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Overrides carries values given explicitly on the command line. Nil fields
// leave the preset untouched.
type Overrides struct {
	VoltThreshold   *float64
	PaddingSeconds  *float64
	AttackReleaseMs *float64
	ChunkFrames     *int
	Jobs            *int
	NFFT            *int
	Hop             *int
	PadTo           *int
	MaxFreq         *float64
}

// Apply returns s with every non-nil override set
func (s Settings) Apply(o Overrides) Settings {
	setFloat(&s.VoltThreshold, o.VoltThreshold)
	setFloat(&s.PaddingSeconds, o.PaddingSeconds)
	setFloat(&s.AttackReleaseMs, o.AttackReleaseMs)
	setInt(&s.ChunkFrames, o.ChunkFrames)
	setInt(&s.Jobs, o.Jobs)
	setInt(&s.Spectrogram.NFFT, o.NFFT)
	setInt(&s.Spectrogram.Hop, o.Hop)
	setInt(&s.Spectrogram.PadTo, o.PadTo)
	setFloat(&s.Spectrogram.MaxFreq, o.MaxFreq)
	return s
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate rejects settings that could never build a working gate. Limits
// that depend on the input framerate are checked by GateConfig.
func (s Settings) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"volt_threshold", s.VoltThreshold},
		{"padding_seconds", s.PaddingSeconds},
		{"attack_release_ms", s.AttackReleaseMs},
		{"spectrogram.max_freq", s.Spectrogram.MaxFreq},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &gate.ConfigError{Field: f.name, Reason: "must be finite"}
		}
		if f.v < 0 {
			return &gate.ConfigError{Field: f.name, Reason: fmt.Sprintf("must be >= 0, got %v", f.v)}
		}
	}
	if s.AttackReleaseMs == 0 {
		return &gate.ConfigError{Field: "attack_release_ms", Reason: "must be > 0"}
	}
	if s.ChunkFrames <= 0 {
		return &gate.ConfigError{Field: "chunk_frames", Reason: fmt.Sprintf("must be > 0, got %d", s.ChunkFrames)}
	}
	if s.Jobs <= 0 {
		return &gate.ConfigError{Field: "jobs", Reason: fmt.Sprintf("must be > 0, got %d", s.Jobs)}
	}
	if err := s.Spectrogram.Grid().Validate(); err != nil {
		return &gate.ConfigError{Field: "spectrogram", Reason: err.Error()}
	}
	if s.Spectrogram.PadTo < s.Spectrogram.NFFT {
		return &gate.ConfigError{Field: "spectrogram.pad_to", Reason: fmt.Sprintf("must be >= nfft %d, got %d", s.Spectrogram.NFFT, s.Spectrogram.PadTo)}
	}
	return nil
}

// GateConfig builds the engine configuration for audio at framerate
func (s Settings) GateConfig(framerate int) (gate.GateConfig, error) {
	return gate.NewGateConfig(s.VoltThreshold, s.PaddingSeconds, s.AttackReleaseMs, framerate)
}

// Grid returns the spectrogram frame layout
func (sp Spectrogram) Grid() labels.Grid {
	return labels.Grid{SampleRate: sp.SampleRate, NFFT: sp.NFFT, Hop: sp.Hop}
}

// GridAt returns the frame layout at another sample rate, for diagnosing
// audio that has not been resampled yet
func (sp Spectrogram) GridAt(sampleRate int) labels.Grid {
	g := sp.Grid()
	g.SampleRate = sampleRate
	return g
}
