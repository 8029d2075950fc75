package gate

import (
	"errors"
	"io"
	"math/rand"
)

func equalBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// randomSamples produces bursty signed data: mostly quiet with loud islands,
// so masks contain runs of many lengths.
func randomSamples(rng *rand.Rand, n int, peak float64) []float64 {
	samples := make([]float64, n)
	loud := false
	for i := range samples {
		if rng.Intn(12) == 0 {
			loud = !loud
		}
		scale := peak * 0.1
		if loud {
			scale = peak
		}
		samples[i] = (rng.Float64()*2 - 1) * scale
	}
	return samples
}

// naiveExpand is the O(n·p) window scan used as a reference
func naiveExpand(above []bool, p int) []bool {
	out := make([]bool, len(above))
	for i := range above {
		for j := max(0, i-p); j <= min(len(above)-1, i+p); j++ {
			if above[j] {
				out[i] = true
				break
			}
		}
	}
	return out
}

// memSource serves samples from memory, at most maxRead frames per call
type memSource struct {
	samples    []float64
	channels   int
	rate       int
	maxRead    int
	declared   int64
	pos        int
	reads      int
	failAfter  int // fail on this read call (1-based); 0 never fails
	failErr    error
	blockFirst chan struct{}
	started    chan struct{}
}

func (s *memSource) ReadChunk(numFrames int) ([]float64, error) {
	s.reads++
	if s.started != nil && s.reads == 1 {
		close(s.started)
		<-s.blockFirst
	}
	if s.failAfter > 0 && s.reads >= s.failAfter {
		return nil, s.failErr
	}
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	if s.maxRead > 0 && numFrames > s.maxRead {
		numFrames = s.maxRead
	}
	end := min(s.pos+numFrames*s.channels, len(s.samples))
	out := append([]float64(nil), s.samples[s.pos:end]...)
	s.pos = end
	return out, nil
}

func (s *memSource) SampleRate() int  { return s.rate }
func (s *memSource) NumChannels() int { return s.channels }
func (s *memSource) NumFrames() int64 { return s.declared }

type memSink struct {
	samples []float64
	writes  int
	failOn  int
}

var errSinkFull = errors.New("sink full")

func (s *memSink) WriteChunk(samples []float64) error {
	s.writes++
	if s.failOn > 0 && s.writes >= s.failOn {
		return errSinkFull
	}
	s.samples = append(s.samples, samples...)
	return nil
}
