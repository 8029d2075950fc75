package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always outputs interleaved 16-bit little-endian stereo
const (
	mp3Channels      = 2
	mp3BitDepth      = 16
	mp3BytesPerFrame = 4
)

// MP3Decoder implements AudioDecoder for MP3 files
type MP3Decoder struct {
	decoder   *mp3.Decoder
	file      *os.File
	numFrames int64
	buf       []byte
}

// NewMP3Decoder creates a new MP3 decoder
func NewMP3Decoder(filename string) (*MP3Decoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	// Length is in decoded bytes, or -1 when the stream is not seekable
	var numFrames int64
	if length := decoder.Length(); length > 0 {
		numFrames = length / mp3BytesPerFrame
	}

	return &MP3Decoder{
		decoder:   decoder,
		file:      f,
		numFrames: numFrames,
	}, nil
}

// ReadChunk reads up to numFrames stereo frames
func (d *MP3Decoder) ReadChunk(numFrames int) ([]float64, error) {
	size := numFrames * mp3BytesPerFrame
	if cap(d.buf) < size {
		d.buf = make([]byte, size)
	}
	buf := d.buf[:size]

	// Fill the buffer; a short read only means the decoder crossed an MP3 frame
	n, err := io.ReadFull(d.decoder, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	if n == 0 {
		return nil, io.EOF
	}

	n -= n % mp3BytesPerFrame
	samples := make([]float64, n/2)
	for i := range samples {
		samples[i] = float64(int16(buf[2*i]) | int16(buf[2*i+1])<<8)
	}
	return samples, nil
}

// SampleRate returns the sample rate
func (d *MP3Decoder) SampleRate() int {
	return d.decoder.SampleRate()
}

// NumFrames returns the decoded length in frames, 0 if unknown
func (d *MP3Decoder) NumFrames() int64 {
	return d.numFrames
}

// NumChannels returns the number of audio channels
func (d *MP3Decoder) NumChannels() int {
	return mp3Channels
}

// BitDepth returns the bits per sample
func (d *MP3Decoder) BitDepth() int {
	return mp3BitDepth
}

// Close closes the decoder and releases resources
func (d *MP3Decoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
