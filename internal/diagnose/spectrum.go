package diagnose

import (
	"fmt"
	"math"

	"github.com/argusdusty/gofft"
	"github.com/linuxmatters/jivegate/internal/labels"
)

// Spectral measures low-frequency power on the same frame grid the
// spectrogram generator uses: nfft-sample Hann-windowed frames every hop
// samples, zero-padded to padTo before the FFT.
type Spectral struct {
	grid    labels.Grid
	padTo   int
	maxFreq float64
	maxBin  int // highest bin with frequency <= maxFreq
	window  []float64
	fftBuf  []complex128
}

// NewSpectral validates the grid and precomputes the window. padTo must be a
// power of two no smaller than nfft.
func NewSpectral(grid labels.Grid, padTo int, maxFreq float64) (*Spectral, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if padTo < grid.NFFT {
		return nil, fmt.Errorf("pad_to %d is smaller than nfft %d", padTo, grid.NFFT)
	}
	if padTo&(padTo-1) != 0 {
		return nil, fmt.Errorf("pad_to must be a power of two, got %d", padTo)
	}
	if maxFreq < 0 || math.IsNaN(maxFreq) || math.IsInf(maxFreq, 0) {
		return nil, fmt.Errorf("max frequency must be a finite value >= 0, got %v", maxFreq)
	}

	// Bin k sits at k*sampleRate/padTo Hz
	maxBin := int(math.Floor(maxFreq * float64(padTo) / float64(grid.SampleRate)))
	maxBin = min(maxBin, padTo/2)

	return &Spectral{
		grid:    grid,
		padTo:   padTo,
		maxFreq: maxFreq,
		maxBin:  maxBin,
		window:  hannWindow(grid.NFFT),
		fftBuf:  make([]complex128, padTo),
	}, nil
}

// Grid returns the frame layout
func (s *Spectral) Grid() labels.Grid {
	return s.grid
}

// Bins returns how many frequency bins count as in-band
func (s *Spectral) Bins() int {
	return s.maxBin + 1
}

// InBandPower returns the summed power of bins at or below the maximum
// frequency for one frame of exactly nfft mono samples.
func (s *Spectral) InBandPower(frame []float64) (float64, error) {
	if len(frame) != s.grid.NFFT {
		return 0, fmt.Errorf("frame has %d samples, want %d", len(frame), s.grid.NFFT)
	}

	for i, v := range frame {
		s.fftBuf[i] = complex(v*s.window[i], 0)
	}
	for i := len(frame); i < s.padTo; i++ {
		s.fftBuf[i] = 0
	}

	if err := gofft.FFT(s.fftBuf); err != nil {
		return 0, fmt.Errorf("FFT failed: %w", err)
	}

	var power float64
	for k := 0; k <= s.maxBin; k++ {
		c := s.fftBuf[k]
		power += real(c)*real(c) + imag(c)*imag(c)
	}
	return power, nil
}

// hannWindow returns a symmetric Hann window of length n
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
