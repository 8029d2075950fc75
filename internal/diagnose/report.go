package diagnose

import (
	"fmt"
	"io"
	"math"

	"github.com/linuxmatters/jivegate/internal/labels"
)

// Interval is one contiguous open region of the gate
type Interval struct {
	StartFrame int64 // first open frame
	EndFrame   int64 // one past the last open frame
	Begin      float64
	End        float64

	// Half-open spectrogram frame range covering the interval
	SpecStart int
	SpecEnd   int
}

// SpectralReport holds the in-band measurement
type SpectralReport struct {
	Grid    labels.Grid
	PadTo   int
	MaxFreq float64

	Frames       int // spectral frames measured
	BandInput    float64
	BandOutput   float64
	BandRetained float64

	// Err is set if the measurement stopped early
	Err error
}

// Report is the outcome of one gate run
type Report struct {
	Framerate  int
	Frames     int64
	OpenFrames int64
	OpenRatio  float64
	Intervals  []Interval

	InputEnergy    float64
	OutputEnergy   float64
	EnergyRetained float64

	Spectral *SpectralReport // nil when not measured
}

// OpenSeconds returns the total open time
func (r *Report) OpenSeconds() float64 {
	if r.Framerate <= 0 {
		return 0
	}
	return float64(r.OpenFrames) / float64(r.Framerate)
}

// Write prints a plain-text summary. At most maxIntervals intervals are
// listed; zero or less lists them all.
func (r *Report) Write(w io.Writer, maxIntervals int) error {
	ew := &errWriter{w: w}

	ew.printf("Frames:            %d (%.2fs)\n", r.Frames, seconds(r.Frames, r.Framerate))
	ew.printf("Open:              %d (%.1f%%, %.2fs)\n", r.OpenFrames, r.OpenRatio*100, r.OpenSeconds())
	ew.printf("Open intervals:    %d\n", len(r.Intervals))
	ew.printf("Energy retained:   %.1f%% (%s)\n", r.EnergyRetained*100, decibels(r.EnergyRetained))

	if s := r.Spectral; s != nil {
		ew.printf("In-band retained:  %.1f%% (%s) at <= %g Hz over %d frames\n",
			s.BandRetained*100, decibels(s.BandRetained), s.MaxFreq, s.Frames)
		if s.Err != nil {
			ew.printf("In-band warning:   %v\n", s.Err)
		}
	}

	shown := len(r.Intervals)
	if maxIntervals > 0 {
		shown = min(shown, maxIntervals)
	}
	for _, iv := range r.Intervals[:shown] {
		ew.printf("  %9.3fs - %9.3fs", iv.Begin, iv.End)
		if r.Spectral != nil {
			ew.printf("  frames [%d, %d)", iv.SpecStart, iv.SpecEnd)
		}
		ew.printf("\n")
	}
	if shown < len(r.Intervals) {
		ew.printf("  ... %d more\n", len(r.Intervals)-shown)
	}
	return ew.err
}

func seconds(frames int64, framerate int) float64 {
	if framerate <= 0 {
		return 0
	}
	return float64(frames) / float64(framerate)
}

func decibels(ratio float64) string {
	if ratio <= 0 {
		return "-inf dB"
	}
	return fmt.Sprintf("%+.1f dB", 10*math.Log10(ratio))
}

// errWriter keeps the first write error and skips later writes
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
