package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVDecoder implements AudioDecoder for integer PCM WAV files
type WAVDecoder struct {
	decoder    *wav.Decoder
	file       *os.File
	sampleRate int
	bitDepth   int
	numChans   int
	numFrames  int64
	intBuf     *audio.IntBuffer

	// Samples of a frame split across two reads
	carry []float64
}

// NewWAVDecoder opens a WAV file and positions it at the start of the PCM data
func NewWAVDecoder(filename string) (*WAVDecoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid WAV file")
	}

	// Get format info without reading all samples
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		f.Close()
		return nil, fmt.Errorf("unsupported WAV encoding %d: only integer PCM can be gated", decoder.WavAudioFormat)
	}
	// 8-bit WAV is unsigned and has no zero-centred magnitude
	if decoder.BitDepth < 16 {
		f.Close()
		return nil, fmt.Errorf("unsupported WAV bit depth %d: need 16, 24 or 32", decoder.BitDepth)
	}

	bytesPerSample := int64(decoder.BitDepth / 8)
	numChannels := int64(decoder.NumChans)

	return &WAVDecoder{
		decoder:    decoder,
		file:       f,
		sampleRate: int(decoder.SampleRate),
		bitDepth:   int(decoder.BitDepth),
		numChans:   int(decoder.NumChans),
		numFrames:  decoder.PCMLen() / (bytesPerSample * numChannels),
	}, nil
}

// ReadChunk reads the next chunk of frames
func (d *WAVDecoder) ReadChunk(numFrames int) ([]float64, error) {
	// Need numFrames × numChannels for interleaved data
	bufSize := numFrames * d.numChans
	if d.intBuf == nil || cap(d.intBuf.Data) < bufSize {
		d.intBuf = &audio.IntBuffer{
			Data: make([]int, bufSize),
			Format: &audio.Format{
				NumChannels: d.numChans,
				SampleRate:  d.sampleRate,
			},
			SourceBitDepth: d.bitDepth,
		}
	}
	d.intBuf.Data = d.intBuf.Data[:bufSize]

	n, err := d.decoder.PCMBuffer(d.intBuf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}

	if n == 0 && len(d.carry) == 0 {
		return nil, io.EOF
	}

	samples := make([]float64, 0, len(d.carry)+n)
	samples = append(samples, d.carry...)
	for i := 0; i < n; i++ {
		samples = append(samples, float64(d.intBuf.Data[i]))
	}

	// A short read can stop mid-frame; hold the tail back until it completes
	if n > 0 {
		whole := len(samples) - len(samples)%d.numChans
		d.carry = append(d.carry[:0], samples[whole:]...)
		samples = samples[:whole]
		if len(samples) == 0 {
			return d.ReadChunk(numFrames)
		}
	} else {
		d.carry = d.carry[:0]
	}
	return samples, nil
}

// SampleRate returns the sample rate
func (d *WAVDecoder) SampleRate() int {
	return d.sampleRate
}

// NumFrames returns the frame count declared by the data chunk
func (d *WAVDecoder) NumFrames() int64 {
	return d.numFrames
}

// NumChannels returns the number of audio channels
func (d *WAVDecoder) NumChannels() int {
	return d.numChans
}

// BitDepth returns the bits per sample
func (d *WAVDecoder) BitDepth() int {
	return d.bitDepth
}

// Close closes the decoder and releases resources
func (d *WAVDecoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
