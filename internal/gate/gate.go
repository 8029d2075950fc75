// Package gate implements the amplitude gating engine: a threshold detector,
// a guard-band expander and an envelope shaper, plus a stream processor that
// runs them over chunked input with output identical to a single pass.
package gate

import "fmt"

// SampleBuffer is a block of audio owned by one gating call. Samples are
// interleaved when Channels > 1.
type SampleBuffer struct {
	Samples   []float64
	Framerate int
	Channels  int
}

// NumFrames returns the number of frames in the buffer
func (b SampleBuffer) NumFrames() int {
	if b.Channels < 1 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Result carries every stage of a whole-buffer gating pass
type Result struct {
	Above  []bool    // Raw detector output, one entry per frame
	Mask   []bool    // Dilated mask; true frames are retained
	Curve  []float64 // Per-frame gain in [0, 1]
	Output []float64 // Gated samples, same layout as the input
}

// Gate runs the detector, expander and shaper over a whole buffer
func Gate(cfg GateConfig, buf SampleBuffer) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkBuffer(cfg, buf); err != nil {
		return nil, err
	}
	return process(cfg, buf.Samples, buf.Channels)
}

func checkBuffer(cfg GateConfig, buf SampleBuffer) error {
	if buf.Channels < 1 {
		return &DataError{Reason: "channel count must be at least 1"}
	}
	if len(buf.Samples) == 0 {
		return &DataError{Reason: "sample buffer is empty"}
	}
	if len(buf.Samples)%buf.Channels != 0 {
		return &DataError{Reason: fmt.Sprintf("%d samples do not divide into %d channels", len(buf.Samples), buf.Channels)}
	}
	if buf.Framerate != cfg.Framerate {
		return &DataError{Reason: fmt.Sprintf("buffer framerate %d does not match configured framerate %d", buf.Framerate, cfg.Framerate)}
	}
	return nil
}

// process is the per-block pipeline shared by Gate and the stream processor
func process(cfg GateConfig, samples []float64, channels int) (*Result, error) {
	above, err := Detect(samples, channels, cfg.VoltThreshold)
	if err != nil {
		return nil, err
	}
	mask := Expand(above, cfg.PaddingSamples())
	curve := Shape(mask, cfg.RampSamples())

	return &Result{
		Above:  above,
		Mask:   mask,
		Curve:  curve,
		Output: ApplyCurve(samples, channels, curve),
	}, nil
}
