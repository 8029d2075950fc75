package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDuplicateOutput marks an input whose output name collides with an
// earlier input in the same batch
var ErrDuplicateOutput = errors.New("duplicate output path")

// Hooks receive batch events. They are called from worker goroutines and
// must be safe for concurrent use. Any hook may be nil.
type Hooks struct {
	Start    func(index int, inputPath, outputPath string)
	Progress func(index int, framesDone, totalFrames int64)
	Done     func(index int, res *Result, err error)
}

// BatchOptions controls a multi-file run
type BatchOptions struct {
	Options
	OutDir string // Empty writes each output beside its input
	Jobs   int    // Files gated at once; < 1 means 1
	Hooks  Hooks
}

// Outcome is the result of one file in a batch
type Outcome struct {
	InputPath  string
	OutputPath string
	Result     *Result
	Err        error
}

// Batch gates every input with up to Jobs independent processors. A failed
// file does not stop the others; cancelling ctx stops files that have not
// started and interrupts running ones at their next read. Outcomes are in
// input order.
func Batch(ctx context.Context, inputs []string, opts BatchOptions) []Outcome {
	outcomes := make([]Outcome, len(inputs))
	claimed := make(map[string]string, len(inputs))
	for i, in := range inputs {
		out := OutputPath(in, opts.OutDir)
		outcomes[i] = Outcome{InputPath: in, OutputPath: out}
		if first, ok := claimed[out]; ok {
			outcomes[i].Err = fmt.Errorf("%w: %s is already written for %s", ErrDuplicateOutput, out, first)
			continue
		}
		claimed[out] = in
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	jobs := max(opts.Jobs, 1)
	work := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(jobs, len(inputs)); w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range work {
				outcomes[i].Result, outcomes[i].Err = runOne(ctx, i, outcomes[i], opts, logger.With("worker", worker))
			}
		}(w)
	}

	for i := range inputs {
		if outcomes[i].Err == nil && ctx.Err() != nil {
			outcomes[i].Err = ctx.Err()
		}
		if outcomes[i].Err == nil {
			select {
			case work <- i:
				continue
			case <-ctx.Done():
				outcomes[i].Err = ctx.Err()
			}
		}
		// Never started
		if opts.Hooks.Done != nil {
			opts.Hooks.Done(i, nil, outcomes[i].Err)
		}
	}
	close(work)
	wg.Wait()

	return outcomes
}

func runOne(ctx context.Context, index int, o Outcome, opts BatchOptions, logger *slog.Logger) (*Result, error) {
	hooks := opts.Hooks
	if hooks.Start != nil {
		hooks.Start(index, o.InputPath, o.OutputPath)
	}

	fileOpts := opts.Options
	fileOpts.Logger = logger
	if hooks.Progress != nil {
		fileOpts.Progress = func(done, total int64) {
			hooks.Progress(index, done, total)
		}
	}

	res, err := GateFile(ctx, o.InputPath, o.OutputPath, fileOpts)
	if err != nil {
		logger.Error("file failed", "input", o.InputPath, "err", err)
	}
	if hooks.Done != nil {
		hooks.Done(index, res, err)
	}
	return res, err
}
