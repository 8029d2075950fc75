package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/linuxmatters/jivegate/internal/audio"
	"github.com/linuxmatters/jivegate/internal/config"
	"github.com/linuxmatters/jivegate/internal/gate"
)

const testRate = 1000

func writeWAV(t *testing.T, path string, bitDepth, channels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, testRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close encoder: %v", err)
	}
}

// burstyPCM is quiet noise with loud islands
func burstyPCM(seed int64, n int) []int {
	rng := rand.New(rand.NewSource(seed))
	data := make([]int, n)
	loud := false
	for i := range data {
		if rng.Intn(60) == 0 {
			loud = !loud
		}
		amp := 100
		if loud {
			amp = 8000
		}
		data[i] = rng.Intn(2*amp+1) - amp
	}
	return data
}

func testSettings() config.Settings {
	s := config.Defaults()
	s.VoltThreshold = 400
	s.PaddingSeconds = 0.005
	s.AttackReleaseMs = 3
	s.ChunkFrames = 64
	s.Spectrogram.NFFT = 64
	s.Spectrogram.Hop = 16
	s.Spectrogram.PadTo = 64
	s.Spectrogram.SampleRate = testRate
	return s
}

// leftovers lists temporary files GateFile may have left in dir
func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var tmp []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			tmp = append(tmp, e.Name())
		}
	}
	return tmp
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		outDir string
		want   string
	}{
		{"wav beside input", "/audio/take1.wav", "", "/audio/take1-gated.wav"},
		{"flac becomes wav", "/audio/take1.flac", "", "/audio/take1-gated.wav"},
		{"out dir", "/audio/take1.mp3", "/out", "/out/take1-gated.wav"},
		{"dots in name", "rec.2024.01.wav", "", "rec.2024.01-gated.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputPath(tt.input, tt.outDir); got != tt.want {
				t.Errorf("OutputPath(%q, %q) = %q, want %q", tt.input, tt.outDir, got, tt.want)
			}
		})
	}
}

func TestGateFileMatchesEngine(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	data := burstyPCM(3, 2000)
	writeWAV(t, in, 16, 1, data)

	settings := testSettings()
	var progressCalls int
	var lastDone, lastTotal int64
	res, err := GateFile(context.Background(), in, out, Options{
		Settings: settings,
		Diagnose: true,
		Progress: func(done, total int64) {
			progressCalls++
			lastDone, lastTotal = done, total
		},
	})
	if err != nil {
		t.Fatalf("GateFile failed: %v", err)
	}

	if res.Frames != 2000 || res.OutputPath != out {
		t.Errorf("Unexpected result: %+v", res)
	}
	if res.Report == nil || res.Report.Spectral == nil {
		t.Fatal("Expected a diagnostic report")
	}
	if progressCalls == 0 || lastDone != 2000 || lastTotal != 2000 {
		t.Errorf("Progress: %d calls, last %d/%d", progressCalls, lastDone, lastTotal)
	}

	samples := make([]float64, len(data))
	for i, v := range data {
		samples[i] = float64(v)
	}
	cfg, err := settings.GateConfig(testRate)
	if err != nil {
		t.Fatal(err)
	}
	want, err := gate.Gate(cfg, gate.SampleBuffer{Samples: samples, Framerate: testRate, Channels: 1})
	if err != nil {
		t.Fatalf("Gate failed: %v", err)
	}

	got, meta, err := audio.ReadWAV(out)
	if err != nil {
		t.Fatalf("Reading output failed: %v", err)
	}
	if meta.BitDepth != 16 || meta.Channels != 1 || meta.SampleRate != testRate {
		t.Errorf("Output format changed: %+v", meta)
	}
	if len(got) != len(want.Output) {
		t.Fatalf("Output has %d samples, want %d", len(got), len(want.Output))
	}
	for i := range got {
		if got[i] != math.Round(want.Output[i]) {
			t.Fatalf("Sample %d: got %v, want %v", i, got[i], math.Round(want.Output[i]))
		}
	}

	var open int64
	for _, m := range want.Mask {
		if m {
			open++
		}
	}
	if res.Report.OpenFrames != open {
		t.Errorf("Report counts %d open frames, engine mask has %d", res.Report.OpenFrames, open)
	}
	if tmp := leftovers(t, dir); len(tmp) != 0 {
		t.Errorf("Temporary files left behind: %v", tmp)
	}
}

func TestGateFileKeepsFormat(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "stereo.wav")
	out := filepath.Join(dir, "stereo-gated.wav")
	writeWAV(t, in, 24, 2, burstyPCM(9, 1200))

	if _, err := GateFile(context.Background(), in, out, Options{Settings: testSettings()}); err != nil {
		t.Fatalf("GateFile failed: %v", err)
	}

	_, meta, err := audio.ReadWAV(out)
	if err != nil {
		t.Fatalf("Reading output failed: %v", err)
	}
	if meta.BitDepth != 24 || meta.Channels != 2 || meta.NumFrames != 600 {
		t.Errorf("Output format changed: %+v", meta)
	}
}

func TestGateFileFailureRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "truncated.wav")
	out := filepath.Join(dir, "truncated-gated.wav")
	writeWAV(t, in, 16, 1, burstyPCM(5, 2000))

	// Drop the last 100 frames without fixing the header
	info, err := os.Stat(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(in, info.Size()-200); err != nil {
		t.Fatal(err)
	}

	var progressed bool
	_, err = GateFile(context.Background(), in, out, Options{
		Settings: testSettings(),
		Progress: func(done, total int64) { progressed = true },
	})

	var de *gate.DataError
	if !errors.As(err, &de) {
		t.Fatalf("Expected *gate.DataError, got %T: %v", err, err)
	}
	if !progressed {
		t.Error("Expected chunks to be written before the failure")
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Output should not exist after failure, stat err = %v", err)
	}
	if tmp := leftovers(t, dir); len(tmp) != 0 {
		t.Errorf("Temporary files left behind: %v", tmp)
	}
}

func TestGateFileFailureKeepsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "in-gated.wav")
	writeWAV(t, in, 16, 1, burstyPCM(1, 500))
	if err := os.WriteFile(out, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GateFile(ctx, in, out, Options{Settings: testSettings()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "previous run" {
		t.Errorf("Existing output was modified: %q", got)
	}
	if tmp := leftovers(t, dir); len(tmp) != 0 {
		t.Errorf("Temporary files left behind: %v", tmp)
	}
}

func TestGateFileRejectsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeWAV(t, in, 16, 1, burstyPCM(2, 500))

	small := testSettings()
	small.ChunkFrames = 4

	negative := testSettings()
	negative.VoltThreshold = -1

	tests := []struct {
		name     string
		input    string
		output   string
		settings config.Settings
	}{
		{"same file", in, in, testSettings()},
		{"missing input", filepath.Join(dir, "missing.wav"), filepath.Join(dir, "a.wav"), testSettings()},
		{"chunk too small", in, filepath.Join(dir, "b.wav"), small},
		{"negative threshold", in, filepath.Join(dir, "c.wav"), negative},
		{"missing output dir", in, filepath.Join(dir, "nope", "d.wav"), testSettings()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GateFile(context.Background(), tt.input, tt.output, Options{Settings: tt.settings}); err == nil {
				t.Fatal("Expected error, got nil")
			}
			if tt.output != tt.input {
				if _, err := os.Stat(tt.output); !errors.Is(err, os.ErrNotExist) {
					t.Errorf("Output should not exist, stat err = %v", err)
				}
			}
		})
	}

	if _, err := GateFile(context.Background(), in, in, Options{Settings: testSettings()}); !errors.Is(err, ErrSameFile) {
		t.Errorf("Expected ErrSameFile, got %v", err)
	}
	if tmp := leftovers(t, dir); len(tmp) != 0 {
		t.Errorf("Temporary files left behind: %v", tmp)
	}
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}

	var inputs []string
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, "take"+string(rune('a'+i))+".wav")
		writeWAV(t, path, 16, 1, burstyPCM(int64(i), 800))
		inputs = append(inputs, path)
	}
	broken := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(broken, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Same base name as takea.wav, so it would overwrite its output
	dupDir := filepath.Join(dir, "again")
	if err := os.Mkdir(dupDir, 0o755); err != nil {
		t.Fatal(err)
	}
	dup := filepath.Join(dupDir, "takea.wav")
	writeWAV(t, dup, 16, 1, burstyPCM(42, 800))
	inputs = append(inputs, broken, dup)

	var mu sync.Mutex
	started := map[int]bool{}
	done := map[int]error{}

	outcomes := Batch(context.Background(), inputs, BatchOptions{
		Options: Options{Settings: testSettings()},
		OutDir:  outDir,
		Jobs:    3,
		Hooks: Hooks{
			Start: func(i int, in, out string) {
				mu.Lock()
				defer mu.Unlock()
				started[i] = true
			},
			Done: func(i int, res *Result, err error) {
				mu.Lock()
				defer mu.Unlock()
				done[i] = err
			},
		},
	})

	if len(outcomes) != len(inputs) {
		t.Fatalf("Expected %d outcomes, got %d", len(inputs), len(outcomes))
	}
	for i := 0; i < 5; i++ {
		o := outcomes[i]
		if o.Err != nil {
			t.Errorf("%s failed: %v", o.InputPath, o.Err)
			continue
		}
		if o.Result.Frames != 800 {
			t.Errorf("%s: %d frames, want 800", o.InputPath, o.Result.Frames)
		}
		if filepath.Dir(o.OutputPath) != outDir {
			t.Errorf("%s written to %s, want %s", o.InputPath, o.OutputPath, outDir)
		}
		if _, err := os.Stat(o.OutputPath); err != nil {
			t.Errorf("Output missing: %v", err)
		}
	}
	if outcomes[5].Err == nil {
		t.Error("Broken input should fail")
	}
	if !errors.Is(outcomes[6].Err, ErrDuplicateOutput) {
		t.Errorf("Expected ErrDuplicateOutput, got %v", outcomes[6].Err)
	}

	if len(done) != len(inputs) {
		t.Errorf("Done called for %d files, want %d", len(done), len(inputs))
	}
	if len(started) != 6 || started[6] {
		t.Errorf("Start called for %v, want every file but the duplicate", started)
	}
}

func TestBatchCancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeWAV(t, in, 16, 1, burstyPCM(4, 300))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := Batch(ctx, []string{in}, BatchOptions{Options: Options{Settings: testSettings()}, Jobs: 2})
	if !errors.Is(outcomes[0].Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", outcomes[0].Err)
	}
	if _, err := os.Stat(OutputPath(in, "")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("No output should be written, stat err = %v", err)
	}
}
