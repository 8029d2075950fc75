package audio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter writes interleaved PCM to a WAV file with a fixed format. It
// keeps the channel count, bit depth and sample rate of the source so the
// gated file is a drop-in replacement.
type WAVWriter struct {
	file     *os.File
	encoder  *wav.Encoder
	format   *audio.Format
	bitDepth int
	minVal   int
	maxVal   int
	frames   int64
	closed   bool
}

// NewWAVWriter creates filename and prepares a PCM encoder for it
func NewWAVWriter(filename string, sampleRate, bitDepth, numChannels int) (*WAVWriter, error) {
	if err := checkWAVFormat(sampleRate, bitDepth, numChannels); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return newWAVWriter(f, sampleRate, bitDepth, numChannels), nil
}

// NewWAVFileWriter writes to an already open, empty file. The writer owns f
// and closes it on Close.
func NewWAVFileWriter(f *os.File, sampleRate, bitDepth, numChannels int) (*WAVWriter, error) {
	if err := checkWAVFormat(sampleRate, bitDepth, numChannels); err != nil {
		return nil, err
	}
	return newWAVWriter(f, sampleRate, bitDepth, numChannels), nil
}

// SupportedOutputDepth reports whether WAVWriter can write bitDepth
func SupportedOutputDepth(bitDepth int) bool {
	return bitDepth == 16 || bitDepth == 24 || bitDepth == 32
}

func checkWAVFormat(sampleRate, bitDepth, numChannels int) error {
	if !SupportedOutputDepth(bitDepth) {
		return fmt.Errorf("unsupported output bit depth %d", bitDepth)
	}
	if numChannels < 1 || sampleRate <= 0 {
		return fmt.Errorf("invalid output format: %d channels at %d Hz", numChannels, sampleRate)
	}
	return nil
}

func newWAVWriter(f *os.File, sampleRate, bitDepth, numChannels int) *WAVWriter {
	maxVal := audio.IntMaxSignedValue(bitDepth)
	return &WAVWriter{
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, bitDepth, numChannels, wavFormatPCM),
		format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		bitDepth: bitDepth,
		minVal:   -maxVal - 1,
		maxVal:   maxVal,
	}
}

// WriteChunk rounds samples back to integers and appends them
func (w *WAVWriter) WriteChunk(samples []float64) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		v := int(math.Round(s))
		if v > w.maxVal {
			v = w.maxVal
		} else if v < w.minVal {
			v = w.minVal
		}
		data[i] = v
	}

	buf := &audio.IntBuffer{
		Format:         w.format,
		Data:           data,
		SourceBitDepth: w.bitDepth,
	}
	if err := w.encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	w.frames += int64(len(samples) / w.format.NumChannels)
	return nil
}

// Frames returns the number of frames written so far
func (w *WAVWriter) Frames() int64 {
	return w.frames
}

// Name returns the path of the file being written
func (w *WAVWriter) Name() string {
	return w.file.Name()
}

// Close finalises the WAV header and closes the file
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.encoder.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to close encoder: %w", encErr)
	}
	return fileErr
}
