// Package pipeline gates audio files end to end: decode, gate, write WAV.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/jivegate/internal/audio"
	"github.com/linuxmatters/jivegate/internal/config"
	"github.com/linuxmatters/jivegate/internal/diagnose"
	"github.com/linuxmatters/jivegate/internal/gate"
)

// ErrSameFile is returned when the output path would overwrite the input
var ErrSameFile = errors.New("output path is the input file")

// Options controls a single file run
type Options struct {
	Settings config.Settings
	Diagnose bool // Attach a diagnose.Collector and return its report
	Logger   *slog.Logger

	// Progress is called after each emitted chunk
	Progress gate.ProgressCallback
}

// Result describes one completed file
type Result struct {
	InputPath  string
	OutputPath string
	Metadata   *audio.Metadata
	Config     gate.GateConfig
	Frames     int64
	Report     *diagnose.Report // nil unless Options.Diagnose
	Elapsed    time.Duration
}

// OutputPath names the gated file for inputPath.
// Example: /path/to/take1.flac → /path/to/take1-gated.wav
// A non-empty outDir replaces the input's directory.
func OutputPath(inputPath, outDir string) string {
	dir := filepath.Dir(inputPath)
	if outDir != "" {
		dir = outDir
	}
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+config.OutputSuffix+config.OutputExt)
}

// GateFile gates inputPath into outputPath. Audio is written to a temporary
// file beside outputPath and renamed into place only when the whole run
// succeeds; on any failure the temporary file is removed and outputPath is
// left as it was.
func GateFile(ctx context.Context, inputPath, outputPath string, opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("input", inputPath)

	if err := checkDistinct(inputPath, outputPath); err != nil {
		return nil, err
	}

	dec, meta, err := audio.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer dec.Close()

	logger.Debug("opened input",
		"format", meta.Format,
		"sample_rate", meta.SampleRate,
		"channels", meta.Channels,
		"bit_depth", meta.BitDepth,
		"frames", meta.NumFrames)

	if !audio.SupportedOutputDepth(meta.BitDepth) {
		return nil, fmt.Errorf("cannot write %d-bit audio as WAV", meta.BitDepth)
	}

	cfg, err := opts.Settings.GateConfig(meta.SampleRate)
	if err != nil {
		return nil, err
	}

	streamOpts := gate.StreamOptions{
		ChunkFrames: opts.Settings.ChunkFrames,
		Progress:    opts.Progress,
		Logger:      logger,
	}

	var collector *diagnose.Collector
	if opts.Diagnose {
		collector, err = newCollector(opts.Settings.Spectrogram, meta, logger)
		if err != nil {
			return nil, err
		}
		streamOpts.Observer = collector
	}

	proc, err := gate.NewProcessor(cfg, streamOpts)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	tmpName := tmp.Name()

	writer, err := audio.NewWAVFileWriter(tmp, meta.SampleRate, meta.BitDepth, meta.Channels)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, err
	}

	// Partial output never survives a failed run
	runErr := proc.Run(ctx, dec, writer)
	closeErr := writer.Close()
	if runErr == nil && closeErr != nil {
		runErr = fmt.Errorf("failed to finalise output: %w", closeErr)
	}
	if runErr != nil {
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not remove partial output", "path", tmpName, "err", err)
		}
		return nil, runErr
	}

	if err := os.Rename(tmpName, outputPath); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to move output into place: %w", err)
	}

	res := &Result{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Metadata:   meta,
		Config:     cfg,
		Frames:     writer.Frames(),
		Elapsed:    time.Since(start),
	}
	if collector != nil {
		res.Report = collector.Report()
	}

	logger.Info("gated file", "output", outputPath, "frames", res.Frames, "elapsed", res.Elapsed)
	return res, nil
}

func newCollector(sp config.Spectrogram, meta *audio.Metadata, logger *slog.Logger) (*diagnose.Collector, error) {
	if meta.SampleRate != sp.SampleRate {
		logger.Warn("input rate differs from spectrogram rate; frame spans use the input rate",
			"input_rate", meta.SampleRate, "spectrogram_rate", sp.SampleRate)
	}
	spectral, err := diagnose.NewSpectral(sp.GridAt(meta.SampleRate), sp.PadTo, sp.MaxFreq)
	if err != nil {
		return nil, fmt.Errorf("invalid spectrogram settings: %w", err)
	}
	return diagnose.NewCollector(meta.SampleRate, meta.Channels, spectral), nil
}

// checkDistinct refuses to gate a file onto itself
func checkDistinct(inputPath, outputPath string) error {
	in, err := filepath.Abs(inputPath)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(outputPath)
	if err != nil {
		return err
	}
	if in == out {
		return ErrSameFile
	}
	if inInfo, err := os.Stat(in); err == nil {
		if outInfo, err := os.Stat(out); err == nil && os.SameFile(inInfo, outInfo) {
			return ErrSameFile
		}
	}
	return nil
}
