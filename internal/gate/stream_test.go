package gate

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
)

func TestNewProcessorRejectsSmallChunk(t *testing.T) {
	cfg := mustConfig(t, 5, 0.004, 3, 1000) // padding 4, ramp 3
	src := &memSource{samples: []float64{1, 2, 3}, channels: 1, rate: 1000}

	_, err := NewProcessor(cfg, StreamOptions{ChunkFrames: 14})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError for chunk 14, got %v", err)
	}
	if cfgErr.Field != "chunk_frames" {
		t.Errorf("expected field chunk_frames, got %q", cfgErr.Field)
	}
	if src.reads != 0 {
		t.Errorf("source read %d times before validation failed", src.reads)
	}

	if _, err := NewProcessor(cfg, StreamOptions{ChunkFrames: 15}); err != nil {
		t.Errorf("chunk of exactly 2*(p+r)+1 rejected: %v", err)
	}
}

func TestNewProcessorRejectsBadConfig(t *testing.T) {
	_, err := NewProcessor(GateConfig{VoltThreshold: 1, AttackReleaseMs: 50}, StreamOptions{ChunkFrames: 1024})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "framerate" {
		t.Fatalf("expected framerate *ConfigError, got %v", err)
	}
}

// TestStreamMatchesWholeBuffer is the chunking transparency check: for random
// inputs, layouts, short reads and every chunk size from the minimum upward,
// the streamed output equals a single whole-buffer pass bit for bit.
func TestStreamMatchesWholeBuffer(t *testing.T) {
	rng := rand.New(rand.NewSource(8))

	for iter := 0; iter < 60; iter++ {
		p := rng.Intn(9)
		r := 1 + rng.Intn(7)
		channels := 1 + rng.Intn(2)
		cfg := mustConfig(t, 200+rng.Float64()*500, float64(p)/1000, float64(r), 1000)
		if cfg.PaddingSamples() != p || cfg.RampSamples() != r {
			t.Fatalf("derived padding/ramp %d/%d, want %d/%d", cfg.PaddingSamples(), cfg.RampSamples(), p, r)
		}

		frames := 1 + rng.Intn(250)
		samples := randomSamples(rng, frames*channels, 1000)

		whole, err := Gate(cfg, SampleBuffer{Samples: samples, Framerate: 1000, Channels: channels})
		if err != nil {
			t.Fatalf("Gate failed: %v", err)
		}

		for chunk := cfg.MinChunkFrames(); chunk <= frames+cfg.MinChunkFrames()+2; chunk++ {
			src := &memSource{
				samples:  samples,
				channels: channels,
				rate:     1000,
				maxRead:  1 + rng.Intn(chunk),
				declared: int64(frames),
			}
			sink := &memSink{}

			proc, err := NewProcessor(cfg, StreamOptions{ChunkFrames: chunk})
			if err != nil {
				t.Fatalf("NewProcessor(%d) failed: %v", chunk, err)
			}
			if err := proc.Run(context.Background(), src, sink); err != nil {
				t.Fatalf("iteration %d chunk %d: Run failed: %v", iter, chunk, err)
			}
			if proc.State() != Done {
				t.Errorf("expected Done, got %s", proc.State())
			}
			if !equalFloats(sink.samples, whole.Output) {
				t.Fatalf("iteration %d (p=%d r=%d ch=%d frames=%d): chunk %d differs from whole-buffer output",
					iter, p, r, channels, frames, chunk)
			}
		}
	}
}

func TestStreamReadFailure(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 1, 1000)
	errDisk := errors.New("disk vanished")
	src := &memSource{
		samples:   make([]float64, 5000),
		channels:  1,
		rate:      1000,
		failAfter: 3,
		failErr:   errDisk,
	}
	sink := &memSink{}

	proc, err := NewProcessor(cfg, StreamOptions{ChunkFrames: 100})
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	err = proc.Run(context.Background(), src, sink)

	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "read" {
		t.Fatalf("expected read *IOError, got %v", err)
	}
	if !errors.Is(err, errDisk) {
		t.Errorf("cause not passed through: %v", err)
	}
	if proc.State() != Failed {
		t.Errorf("expected Failed, got %s", proc.State())
	}
	if src.reads != 3 {
		t.Errorf("expected no retry after failure, source read %d times", src.reads)
	}
}

func TestStreamWriteFailure(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 1, 1000)
	src := &memSource{samples: make([]float64, 5000), channels: 1, rate: 1000}
	sink := &memSink{failOn: 2}

	proc, _ := NewProcessor(cfg, StreamOptions{ChunkFrames: 100})
	err := proc.Run(context.Background(), src, sink)

	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "write" {
		t.Fatalf("expected write *IOError, got %v", err)
	}
	if !errors.Is(err, errSinkFull) {
		t.Errorf("cause not passed through: %v", err)
	}
	if proc.State() != Failed {
		t.Errorf("expected Failed, got %s", proc.State())
	}
}

func TestStreamCancelledBeforeRead(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 1, 1000)
	src := &memSource{samples: make([]float64, 500), channels: 1, rate: 1000}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc, _ := NewProcessor(cfg, StreamOptions{ChunkFrames: 100})
	err := proc.Run(ctx, src, &memSink{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if proc.State() != Failed {
		t.Errorf("expected Failed, got %s", proc.State())
	}
	if src.reads != 0 {
		t.Errorf("source read %d times after cancellation", src.reads)
	}
}

// cancellingSink cancels its context after the first write, so the processor
// should stop at the next read boundary.
type cancellingSink struct {
	memSink
	cancel context.CancelFunc
}

func (s *cancellingSink) WriteChunk(samples []float64) error {
	s.cancel()
	return s.memSink.WriteChunk(samples)
}

func TestStreamCancelledAtChunkBoundary(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 1, 1000)
	src := &memSource{samples: make([]float64, 5000), channels: 1, rate: 1000}
	ctx, cancel := context.WithCancel(context.Background())
	sink := &cancellingSink{cancel: cancel}

	proc, _ := NewProcessor(cfg, StreamOptions{ChunkFrames: 100})
	err := proc.Run(ctx, src, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.writes != 1 {
		t.Errorf("expected exactly one chunk written before stopping, got %d", sink.writes)
	}
}

func TestStreamDataErrors(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 1, 1000)

	testCases := []struct {
		name string
		src  *memSource
	}{
		{"empty input", &memSource{channels: 1, rate: 1000}},
		{"framerate mismatch", &memSource{samples: make([]float64, 10), channels: 1, rate: 44100}},
		{"declared length too long", &memSource{samples: make([]float64, 250), channels: 1, rate: 1000, declared: 300}},
		{"partial frame", &memSource{samples: make([]float64, 7), channels: 2, rate: 1000}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			proc, _ := NewProcessor(cfg, StreamOptions{ChunkFrames: 100})
			err := proc.Run(context.Background(), tc.src, &memSink{})
			var dataErr *DataError
			if !errors.As(err, &dataErr) {
				t.Fatalf("expected *DataError, got %v", err)
			}
			if proc.State() != Failed {
				t.Errorf("expected Failed, got %s", proc.State())
			}
		})
	}
}

func TestStreamRejectsConcurrentRun(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 1, 1000)
	src := &memSource{
		samples:    make([]float64, 300),
		channels:   1,
		rate:       1000,
		started:    make(chan struct{}),
		blockFirst: make(chan struct{}),
	}
	proc, _ := NewProcessor(cfg, StreamOptions{ChunkFrames: 100})

	done := make(chan error, 1)
	go func() {
		done <- proc.Run(context.Background(), src, &memSink{})
	}()

	<-src.started
	if proc.State() != Reading {
		t.Errorf("expected Reading while blocked in ReadChunk, got %s", proc.State())
	}
	other := &memSource{samples: make([]float64, 10), channels: 1, rate: 1000}
	if err := proc.Run(context.Background(), other, &memSink{}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(src.blockFirst)

	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Reusable once the first run has finished
	if err := proc.Run(context.Background(), other, &memSink{}); err != nil {
		t.Errorf("second run after completion failed: %v", err)
	}
}

type recordingObserver struct {
	starts []int64
	frames int
}

func (o *recordingObserver) ObserveChunk(start int64, input, curve, output []float64) {
	o.starts = append(o.starts, start)
	o.frames += len(curve)
}

func TestStreamObserverAndProgress(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 1, 1000)
	src := &memSource{samples: make([]float64, 1000), channels: 1, rate: 1000, declared: 1000}
	obs := &recordingObserver{}

	var lastDone, lastTotal int64
	proc, _ := NewProcessor(cfg, StreamOptions{
		ChunkFrames: 128,
		Observer:    obs,
		Progress: func(done, total int64) {
			if done < lastDone {
				t.Errorf("progress went backwards: %d after %d", done, lastDone)
			}
			lastDone, lastTotal = done, total
		},
	})
	if err := proc.Run(context.Background(), src, &memSink{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if obs.frames != 1000 {
		t.Errorf("observer saw %d frames, want 1000", obs.frames)
	}
	if len(obs.starts) == 0 || obs.starts[0] != 0 {
		t.Errorf("first observed chunk should start at 0: %v", obs.starts)
	}
	if lastDone != 1000 || lastTotal != 1000 {
		t.Errorf("final progress %d/%d, want 1000/1000", lastDone, lastTotal)
	}
}

// eofWithDataSource returns its last samples together with io.EOF
type eofWithDataSource struct {
	memSource
}

func (s *eofWithDataSource) ReadChunk(numFrames int) ([]float64, error) {
	out, err := s.memSource.ReadChunk(numFrames)
	if err == nil && s.pos >= len(s.samples) {
		return out, io.EOF
	}
	return out, err
}

func TestStreamAcceptsDataWithEOF(t *testing.T) {
	cfg := mustConfig(t, 5, 0.002, 2, 1000)
	samples := randomSamples(rand.New(rand.NewSource(9)), 333, 10)
	src := &eofWithDataSource{memSource{samples: samples, channels: 1, rate: 1000}}
	sink := &memSink{}

	proc, _ := NewProcessor(cfg, StreamOptions{ChunkFrames: 50})
	if err := proc.Run(context.Background(), src, sink); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	whole, _ := Gate(cfg, SampleBuffer{Samples: samples, Framerate: 1000, Channels: 1})
	if !equalFloats(sink.samples, whole.Output) {
		t.Error("streamed output differs from whole-buffer output")
	}
}
