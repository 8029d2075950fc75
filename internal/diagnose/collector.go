// Package diagnose measures what a gate run kept and what it removed.
//
// A Collector is attached to a gate.Processor as its Observer. It sees every
// emitted region in order and accumulates the open-frame ratio, the open
// intervals, and the energy retained both across the whole band and in the
// low-frequency band the downstream spectrogram keeps.
package diagnose

import (
	"gonum.org/v1/gonum/floats"
)

// Collector accumulates gate statistics chunk by chunk. It is not safe for
// concurrent use; give each Processor its own Collector.
type Collector struct {
	framerate int
	channels  int
	spectral  *Spectral

	frames     int64
	openFrames int64
	intervals  [][2]int64 // open runs in frames, half-open
	inOpen     bool
	openStart  int64

	inEnergy  float64
	outEnergy float64

	// Mono mixes waiting for a full spectral frame. monoStart is the global
	// frame index of monoIn[0].
	monoIn    []float64
	monoOut   []float64
	monoStart int64
	specFrame int // next spectral frame to measure
	bandIn    float64
	bandOut   float64
	specErr   error
}

// NewCollector creates a Collector for audio with the given layout. spectral
// may be nil to skip the in-band measurement.
func NewCollector(framerate, channels int, spectral *Spectral) *Collector {
	return &Collector{
		framerate: framerate,
		channels:  max(channels, 1),
		spectral:  spectral,
	}
}

// ObserveChunk implements gate.Observer
func (c *Collector) ObserveChunk(startFrame int64, input, curve, output []float64) {
	for i, g := range curve {
		open := g > 0.5
		frame := startFrame + int64(i)
		switch {
		case open && !c.inOpen:
			c.inOpen = true
			c.openStart = frame
		case !open && c.inOpen:
			c.inOpen = false
			c.intervals = append(c.intervals, [2]int64{c.openStart, frame})
		}
		if open {
			c.openFrames++
		}
	}
	c.frames = startFrame + int64(len(curve))

	c.inEnergy += floats.Dot(input, input)
	c.outEnergy += floats.Dot(output, output)

	if c.spectral != nil && c.specErr == nil {
		c.monoIn = appendMono(c.monoIn, input, c.channels)
		c.monoOut = appendMono(c.monoOut, output, c.channels)
		c.measureSpectral()
	}
}

// measureSpectral consumes every complete spectral frame in the mono buffers
func (c *Collector) measureSpectral() {
	grid := c.spectral.Grid()
	for {
		off := int64(c.specFrame)*int64(grid.Hop) - c.monoStart
		if off+int64(grid.NFFT) > int64(len(c.monoIn)) {
			break
		}
		lo, hi := int(off), int(off)+grid.NFFT

		pin, err := c.spectral.InBandPower(c.monoIn[lo:hi])
		if err != nil {
			c.specErr = err
			return
		}
		pout, err := c.spectral.InBandPower(c.monoOut[lo:hi])
		if err != nil {
			c.specErr = err
			return
		}
		c.bandIn += pin
		c.bandOut += pout
		c.specFrame++
	}

	// Drop samples no later frame can reach
	keep := int64(c.specFrame)*int64(grid.Hop) - c.monoStart
	if keep > 0 {
		keep = min(keep, int64(len(c.monoIn)))
		c.monoIn = append(c.monoIn[:0], c.monoIn[keep:]...)
		c.monoOut = append(c.monoOut[:0], c.monoOut[keep:]...)
		c.monoStart += keep
	}
}

// appendMono averages interleaved frames down to one channel
func appendMono(dst, samples []float64, channels int) []float64 {
	if channels == 1 {
		return append(dst, samples...)
	}
	for i := 0; i+channels <= len(samples); i += channels {
		dst = append(dst, floats.Sum(samples[i:i+channels])/float64(channels))
	}
	return dst
}

// Report summarises everything observed so far. An interval still open at
// the last observed frame is closed there.
func (c *Collector) Report() *Report {
	r := &Report{
		Framerate:    c.framerate,
		Frames:       c.frames,
		OpenFrames:   c.openFrames,
		InputEnergy:  c.inEnergy,
		OutputEnergy: c.outEnergy,
	}
	if c.frames > 0 {
		r.OpenRatio = float64(c.openFrames) / float64(c.frames)
	}
	r.EnergyRetained = retained(c.inEnergy, c.outEnergy)

	runs := c.intervals
	if c.inOpen {
		runs = append(runs[:len(runs):len(runs)], [2]int64{c.openStart, c.frames})
	}

	var numSpec int
	if c.spectral != nil {
		grid := c.spectral.Grid()
		numSpec = grid.NumFrames(c.frames)
		r.Spectral = &SpectralReport{
			Grid:         grid,
			PadTo:        c.spectral.padTo,
			MaxFreq:      c.spectral.maxFreq,
			Frames:       c.specFrame,
			BandInput:    c.bandIn,
			BandOutput:   c.bandOut,
			BandRetained: retained(c.bandIn, c.bandOut),
			Err:          c.specErr,
		}
	}

	r.Intervals = make([]Interval, len(runs))
	for i, run := range runs {
		iv := Interval{
			StartFrame: run[0],
			EndFrame:   run[1],
			Begin:      float64(run[0]) / float64(c.framerate),
			End:        float64(run[1]) / float64(c.framerate),
		}
		if c.spectral != nil {
			iv.SpecStart, iv.SpecEnd = c.spectral.Grid().FrameSpan(iv.Begin, iv.End, numSpec)
		}
		r.Intervals[i] = iv
	}
	return r
}

// retained is out/in, or 1 when there was nothing to lose
func retained(in, out float64) float64 {
	if in == 0 {
		return 1
	}
	return out / in
}
