package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/jivegate/internal/cli"
	"github.com/linuxmatters/jivegate/internal/config"
	"github.com/linuxmatters/jivegate/internal/labels"
	"github.com/linuxmatters/jivegate/internal/pipeline"
	"github.com/linuxmatters/jivegate/internal/ui"
	"github.com/mattn/go-isatty"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

// maxReportIntervals caps the intervals listed per file by --diagnose
const maxReportIntervals = 20

type GateCmd struct {
	Inputs []string `arg:"" name:"inputs" help:"Audio files to gate (.wav, .flac or .mp3)"`

	Config        string   `short:"c" help:"YAML preset applied before flags" placeholder:"file"`
	Threshold     *float64 `short:"t" help:"Volt threshold in raw PCM units (default: 0)" placeholder:"pcm"`
	Padding       *float64 `short:"p" help:"Seconds kept either side of a loud frame (default: 1)" placeholder:"seconds"`
	AttackRelease *float64 `short:"a" name:"attack-release" help:"Ramp length in milliseconds (default: 50)" placeholder:"ms"`
	ChunkFrames   *int     `name:"chunk-frames" help:"Frames per streaming window (default: 1048576)" placeholder:"frames"`
	Jobs          *int     `short:"j" help:"Files gated in parallel (default: 1)" placeholder:"n"`
	OutDir        string   `short:"o" name:"out-dir" help:"Directory for gated files (default: beside each input)" placeholder:"dir"`

	Diagnose bool     `short:"d" help:"Report open intervals and the energy kept in the spectrogram band"`
	NFFT     *int     `name:"nfft" help:"Spectrogram window length for --diagnose (default: 3208)" placeholder:"samples"`
	Hop      *int     `help:"Spectrogram hop for --diagnose (default: 641)" placeholder:"samples"`
	PadTo    *int     `name:"pad-to" help:"FFT length for --diagnose, a power of two (default: 4096)" placeholder:"samples"`
	MaxFreq  *float64 `name:"max-freq" help:"Top of the spectrogram band in Hz (default: 100)" placeholder:"hz"`

	NoProgress bool `name:"no-progress" help:"Print one line per file instead of the progress UI"`
}

type AlignCmd struct {
	Times []float64 `arg:"" name:"times" help:"Times in seconds"`

	SampleRate int     `name:"sample-rate" help:"Sample rate of the recording" default:"8000"`
	NFFT       int     `name:"nfft" help:"Spectrogram window length" default:"3208"`
	Hop        int     `help:"Spectrogram hop" default:"641"`
	Frames     int     `help:"Spectrogram frame count; indices are clamped to it (default: unbounded)"`
	Duration   float64 `help:"Recording length in seconds, used to derive --frames"`
	Span       bool    `help:"Treat times as begin/end pairs and print half-open frame spans"`
}

type VersionCmd struct{}

var CLI struct {
	DebugLog string `name:"debug-log" help:"Write debug logs to this file" placeholder:"file"`

	Gate    GateCmd    `cmd:"" help:"Silence quiet stretches of one or more recordings."`
	Align   AlignCmd   `cmd:"" help:"Map label times onto spectrogram frame indices."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("jivegate"),
		kong.Description("Silence the quiet stretches of long field recordings."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	logger, closeLog, err := newLogger(CLI.DebugLog)
	if err != nil {
		cli.PrintError(fmt.Sprintf("opening debug log: %v", err))
		os.Exit(1)
	}
	defer closeLog()

	if err := ctx.Run(logger); err != nil {
		cli.PrintError(err.Error())
		closeLog()
		os.Exit(1)
	}
}

// newLogger returns a debug-level text logger writing to path, or a discard
// logger when path is empty.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h).With("pid", os.Getpid()), func() { f.Close() }, nil
}

func (v *VersionCmd) Run() error {
	cli.PrintVersion(version)
	return nil
}

func (g *GateCmd) Run(logger *slog.Logger) error {
	settings, err := g.settings()
	if err != nil {
		return err
	}

	for _, in := range g.Inputs {
		if _, err := os.Stat(in); err != nil {
			return fmt.Errorf("input file does not exist: %s", in)
		}
	}
	if g.OutDir != "" {
		if info, err := os.Stat(g.OutDir); err != nil || !info.IsDir() {
			return fmt.Errorf("output directory does not exist: %s", g.OutDir)
		}
	}

	logger.Info("gate batch starting",
		"files", len(g.Inputs),
		"threshold", settings.VoltThreshold,
		"padding_s", settings.PaddingSeconds,
		"attack_release_ms", settings.AttackReleaseMs,
		"chunk_frames", settings.ChunkFrames,
		"jobs", settings.Jobs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pipeline.BatchOptions{
		Options: pipeline.Options{
			Settings: settings,
			Diagnose: g.Diagnose,
			Logger:   logger,
		},
		OutDir: g.OutDir,
		Jobs:   settings.Jobs,
	}

	start := time.Now()
	var outcomes []pipeline.Outcome
	if g.NoProgress || !isatty.IsTerminal(os.Stdout.Fd()) {
		outcomes = runPlain(ctx, g.Inputs, opts)
	} else {
		outcomes, err = runInteractive(ctx, stop, g.Inputs, opts)
		if err != nil {
			return err
		}
	}

	return summarise(outcomes, time.Since(start), g.Diagnose)
}

// settings layers defaults, the preset and explicit flags
func (g *GateCmd) settings() (config.Settings, error) {
	settings := config.Defaults()
	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return config.Settings{}, err
		}
		settings = loaded
	}

	settings = settings.Apply(config.Overrides{
		VoltThreshold:   g.Threshold,
		PaddingSeconds:  g.Padding,
		AttackReleaseMs: g.AttackRelease,
		ChunkFrames:     g.ChunkFrames,
		Jobs:            g.Jobs,
		NFFT:            g.NFFT,
		Hop:             g.Hop,
		PadTo:           g.PadTo,
		MaxFreq:         g.MaxFreq,
	})
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

// runPlain prints one line per finished file
func runPlain(ctx context.Context, inputs []string, opts pipeline.BatchOptions) []pipeline.Outcome {
	opts.Hooks.Done = func(i int, res *pipeline.Result, err error) {
		if err != nil {
			cli.PrintFailure(fmt.Sprintf("%s: %v", inputs[i], err))
			return
		}
		cli.PrintSuccess(fmt.Sprintf("%s → %s (%s)", inputs[i], res.OutputPath, cli.FormatDuration(res.Elapsed)))
	}
	return pipeline.Batch(ctx, inputs, opts)
}

// runInteractive drives the Bubbletea progress UI while the batch runs
func runInteractive(ctx context.Context, cancel func(), inputs []string, opts pipeline.BatchOptions) ([]pipeline.Outcome, error) {
	model := ui.NewModel(inputs, cancel)
	p := tea.NewProgram(model)

	opts.Hooks = pipeline.Hooks{
		Start: func(i int, in, out string) {
			p.Send(ui.FileStart{Index: i, InputPath: in, OutputPath: out})
		},
		Progress: func(i int, done, total int64) {
			p.Send(ui.FileProgress{Index: i, FramesDone: done, TotalFrames: total})
		},
		Done: func(i int, res *pipeline.Result, err error) {
			p.Send(ui.FileComplete{Index: i, Result: res, Err: err})
		},
	}

	var outcomes []pipeline.Outcome
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		outcomes = pipeline.Batch(ctx, inputs, opts)
		p.Send(ui.AllComplete{})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-finished
		return nil, fmt.Errorf("running UI: %w", err)
	}

	// The UI may quit early on ctrl+c; wait for workers to stop
	<-finished
	return outcomes, nil
}

func summarise(outcomes []pipeline.Outcome, elapsed time.Duration, diagnose bool) error {
	var gated, failed int
	var audioDur time.Duration
	var written int64

	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		gated++
		audioDur += time.Duration(o.Result.Metadata.Duration * float64(time.Second))
		if info, err := os.Stat(o.OutputPath); err == nil {
			written += info.Size()
		}
	}

	if diagnose {
		for _, o := range outcomes {
			if o.Result == nil || o.Result.Report == nil {
				continue
			}
			cli.PrintSection(filepath.Base(o.InputPath))
			if err := o.Result.Report.Write(os.Stdout, maxReportIntervals); err != nil {
				return err
			}
		}
	}

	cli.PrintGateSummary(gated, failed, audioDur, elapsed, written)

	if failed > 0 {
		for _, o := range outcomes {
			if o.Err != nil {
				cli.PrintFailure(fmt.Sprintf("%s: %v", o.InputPath, o.Err))
			}
		}
		return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
	}
	return nil
}

func (a *AlignCmd) Run() error {
	grid := labels.Grid{SampleRate: a.SampleRate, NFFT: a.NFFT, Hop: a.Hop}
	if err := grid.Validate(); err != nil {
		return err
	}

	numFrames := a.Frames
	if numFrames == 0 && a.Duration > 0 {
		numFrames = grid.NumFrames(int64(math.Round(a.Duration * float64(a.SampleRate))))
	}
	if numFrames == 0 {
		numFrames = math.MaxInt32
	}

	return a.print(os.Stdout, grid, numFrames)
}

func (a *AlignCmd) print(w io.Writer, grid labels.Grid, numFrames int) error {
	if a.Span {
		if len(a.Times)%2 != 0 {
			return fmt.Errorf("--span needs begin/end pairs, got %d times", len(a.Times))
		}
		for i := 0; i < len(a.Times); i += 2 {
			start, end := grid.FrameSpan(a.Times[i], a.Times[i+1], numFrames)
			if _, err := fmt.Fprintf(w, "%g\t%g\t%d\t%d\n", a.Times[i], a.Times[i+1], start, end); err != nil {
				return err
			}
		}
		return nil
	}

	for _, t := range a.Times {
		if _, err := fmt.Fprintf(w, "%g\t%d\n", t, grid.FrameIndex(t, numFrames)); err != nil {
			return err
		}
	}
	return nil
}
