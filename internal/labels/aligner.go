// Package labels maps times in a recording onto spectrogram frame indices.
//
// A spectrogram with window nfft and hop advances one frame per hop samples,
// and frame k is centred on sample k*hop + nfft/2. The training-label
// generator and the gate diagnostics both use these functions so their frame
// grids always agree.
package labels

import (
	"fmt"
	"math"
)

// FrameIndex returns ceil((timeSec*sampleRate - nfft/2) / hop), clamped to
// [0, numFrames].
func FrameIndex(timeSec float64, sampleRate, nfft, hop, numFrames int) int {
	idx := math.Ceil((timeSec*float64(sampleRate) - float64(nfft)/2) / float64(hop))
	if idx < 0 || math.IsNaN(idx) {
		return 0
	}
	if idx > float64(numFrames) {
		return numFrames
	}
	return int(idx)
}

// FrameSpan returns the half-open frame range [start, end) covering a labelled
// interval. Both ends use FrameIndex, so an interval shorter than one hop can
// produce an empty span.
func FrameSpan(beginSec, endSec float64, sampleRate, nfft, hop, numFrames int) (start, end int) {
	start = FrameIndex(beginSec, sampleRate, nfft, hop, numFrames)
	end = FrameIndex(endSec, sampleRate, nfft, hop, numFrames)
	if end < start {
		end = start
	}
	return start, end
}

// NumFrames returns how many full nfft windows a hop-spaced spectrogram fits
// into numSamples samples.
func NumFrames(numSamples int64, nfft, hop int) int {
	if numSamples < int64(nfft) || nfft <= 0 || hop <= 0 {
		return 0
	}
	return int((numSamples-int64(nfft))/int64(hop)) + 1
}

// Grid describes a spectrogram frame layout
type Grid struct {
	SampleRate int
	NFFT       int
	Hop        int
}

// Validate checks the grid can produce frames
func (g Grid) Validate() error {
	if g.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", g.SampleRate)
	}
	if g.NFFT <= 0 {
		return fmt.Errorf("nfft must be positive, got %d", g.NFFT)
	}
	if g.Hop <= 0 || g.Hop > g.NFFT {
		return fmt.Errorf("hop must be in [1, nfft], got %d", g.Hop)
	}
	return nil
}

// FrameIndex maps a time onto this grid
func (g Grid) FrameIndex(timeSec float64, numFrames int) int {
	return FrameIndex(timeSec, g.SampleRate, g.NFFT, g.Hop, numFrames)
}

// FrameSpan maps an interval onto this grid
func (g Grid) FrameSpan(beginSec, endSec float64, numFrames int) (int, int) {
	return FrameSpan(beginSec, endSec, g.SampleRate, g.NFFT, g.Hop, numFrames)
}

// NumFrames returns the frame count for numSamples samples on this grid
func (g Grid) NumFrames(numSamples int64) int {
	return NumFrames(numSamples, g.NFFT, g.Hop)
}
