package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

// State is a stream processor lifecycle state
type State int32

const (
	Idle State = iota
	Reading
	Processing
	Flushing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Processing:
		return "processing"
	case Flushing:
		return "flushing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Source yields interleaved samples in chunks. ReadChunk returns io.EOF once
// the input is exhausted.
type Source interface {
	// ReadChunk reads up to numFrames frames
	ReadChunk(numFrames int) ([]float64, error)

	// SampleRate returns the frame rate in Hz
	SampleRate() int

	// NumChannels returns the number of interleaved channels
	NumChannels() int
}

// frameCounter is implemented by sources that know their length up front.
// Zero means unknown.
type frameCounter interface {
	NumFrames() int64
}

// Sink receives gated samples in the order they were read
type Sink interface {
	WriteChunk(samples []float64) error
}

// Observer sees every emitted core region. The slices are only valid for the
// duration of the call.
type Observer interface {
	ObserveChunk(startFrame int64, input, curve, output []float64)
}

// ProgressCallback is called after each emitted chunk. totalFrames is 0 when
// the source length is unknown.
type ProgressCallback func(framesDone, totalFrames int64)

// StreamOptions configures a Processor
type StreamOptions struct {
	ChunkFrames int // Window size in frames, overlap included
	Observer    Observer
	Progress    ProgressCallback
	Logger      *slog.Logger
}

// Processor drives the gating pipeline over input too large to buffer whole.
// Each window carries ContextFrames of overlap on both sides of the region it
// emits, so output is bit-identical to Gate on the full buffer.
//
// A Processor handles one run at a time; use one instance per worker to gate
// files in parallel.
type Processor struct {
	cfg       GateConfig
	opts      StreamOptions
	ctxFrames int
	logger    *slog.Logger

	running atomic.Bool
	state   atomic.Int32
}

// NewProcessor validates cfg and the chunk size before any I/O happens
func NewProcessor(cfg GateConfig, opts StreamOptions) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.ChunkFrames < cfg.MinChunkFrames() {
		return nil, &ConfigError{
			Field:  "chunk_frames",
			Reason: fmt.Sprintf("is %d, need at least %d for padding %d and ramp %d", opts.ChunkFrames, cfg.MinChunkFrames(), cfg.PaddingSamples(), cfg.RampSamples()),
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Processor{
		cfg:       cfg,
		opts:      opts,
		ctxFrames: cfg.ContextFrames(),
		logger:    logger,
	}, nil
}

// State returns the current lifecycle state
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Config returns the gate configuration the processor was built with
func (p *Processor) Config() GateConfig {
	return p.cfg
}

// Run gates src into sink. Cancellation is checked at the top of every read
// phase only. Any failure leaves the processor in Failed; nothing is retried.
func (p *Processor) Run(ctx context.Context, src Source, sink Sink) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer p.running.Store(false)

	p.setState(Idle)

	channels := src.NumChannels()
	if channels < 1 {
		return p.fail(&DataError{Reason: fmt.Sprintf("source reports %d channels", channels)})
	}
	if src.SampleRate() != p.cfg.Framerate {
		return p.fail(&DataError{Reason: fmt.Sprintf("source framerate %d does not match configured framerate %d", src.SampleRate(), p.cfg.Framerate)})
	}

	var declared int64
	if fc, ok := src.(frameCounter); ok {
		declared = fc.NumFrames()
	}

	chunkFrames := p.opts.ChunkFrames
	window := make([]float64, 0, chunkFrames*channels)
	var winStart int64 // global frame index of window[0]
	var emitFrom int64 // next frame to emit
	eof := false

	for {
		p.setState(Reading)
		if err := ctx.Err(); err != nil {
			return p.fail(err)
		}

		for !eof && len(window)/channels < chunkFrames {
			chunk, err := src.ReadChunk(chunkFrames - len(window)/channels)
			window = append(window, chunk...)
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			if err != nil {
				return p.fail(&IOError{Op: "read", Err: err})
			}
			if len(chunk) == 0 {
				return p.fail(&IOError{Op: "read", Err: io.ErrNoProgress})
			}
		}

		p.setState(Processing)
		if len(window)%channels != 0 {
			return p.fail(&DataError{Reason: fmt.Sprintf("partial frame: %d samples for %d channels", len(window), channels)})
		}
		winEnd := winStart + int64(len(window)/channels)
		if winEnd == 0 {
			return p.fail(&DataError{Reason: "input contains no samples"})
		}

		res, err := process(p.cfg, window, channels)
		if err != nil {
			return p.fail(err)
		}

		coreEnd := winEnd
		if !eof {
			coreEnd -= int64(p.ctxFrames)
		} else {
			p.setState(Flushing)
		}

		if err := p.emit(sink, window, res, channels, winStart, emitFrom, coreEnd, declared); err != nil {
			return p.fail(err)
		}
		emitFrom = coreEnd

		if eof {
			if declared > 0 && emitFrom != declared {
				return p.fail(&DataError{Reason: fmt.Sprintf("source declared %d frames but yielded %d", declared, emitFrom)})
			}
			p.setState(Done)
			p.logger.Debug("gate run complete", "frames", emitFrom)
			return nil
		}

		// The trailing overlap becomes the next window's leading overlap
		keepFrom := coreEnd - int64(p.ctxFrames)
		drop := int(keepFrom-winStart) * channels
		window = append(window[:0], window[drop:]...)
		winStart = keepFrom
	}
}

// emit writes frames [from, to) of the current window
func (p *Processor) emit(sink Sink, window []float64, res *Result, channels int, winStart, from, to, total int64) error {
	if to <= from {
		return nil
	}
	lo := int(from - winStart)
	hi := int(to - winStart)

	out := res.Output[lo*channels : hi*channels]
	if err := sink.WriteChunk(out); err != nil {
		return &IOError{Op: "write", Err: err}
	}

	if p.opts.Observer != nil {
		p.opts.Observer.ObserveChunk(from, window[lo*channels:hi*channels], res.Curve[lo:hi], out)
	}
	if p.opts.Progress != nil {
		p.opts.Progress(to, total)
	}

	p.logger.Debug("gate chunk emitted", "from", from, "to", to, "window_start", winStart)
	return nil
}

func (p *Processor) setState(s State) {
	p.state.Store(int32(s))
}

func (p *Processor) fail(err error) error {
	prev := p.State()
	p.setState(Failed)
	p.logger.Error("gate run failed", "state", prev.String(), "err", err)
	return err
}
