package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// FLACDecoder implements AudioDecoder for FLAC files
type FLACDecoder struct {
	stream      *flac.Stream
	file        *os.File
	sampleRate  int
	bitDepth    int
	numFrames   int64
	numChannels int

	// Interleaved samples decoded from the last FLAC frame but not yet returned
	pending []float64
}

// NewFLACDecoder creates a new FLAC decoder. Format details come from the
// STREAMINFO block.
func NewFLACDecoder(filename string) (*FLACDecoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	// Parse FLAC stream - reads signature and StreamInfo block
	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}

	return &FLACDecoder{
		stream:      stream,
		file:        f,
		sampleRate:  int(stream.Info.SampleRate),
		bitDepth:    int(stream.Info.BitsPerSample),
		numFrames:   int64(stream.Info.NSamples),
		numChannels: int(stream.Info.NChannels),
	}, nil
}

// ReadChunk reads up to numFrames interleaved frames
func (d *FLACDecoder) ReadChunk(numFrames int) ([]float64, error) {
	want := numFrames * d.numChannels

	// Parse FLAC frames until we have enough samples
	for len(d.pending) < want {
		frame, err := d.stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		// FLAC frames contain one subframe per channel
		frameSamples := len(frame.Subframes[0].Samples)
		for i := 0; i < frameSamples; i++ {
			for _, subframe := range frame.Subframes {
				d.pending = append(d.pending, float64(subframe.Samples[i]))
			}
		}
	}

	if len(d.pending) == 0 {
		return nil, io.EOF
	}

	n := min(want, len(d.pending))
	samples := make([]float64, n)
	copy(samples, d.pending[:n])
	d.pending = append(d.pending[:0], d.pending[n:]...)
	return samples, nil
}

// SampleRate returns the sample rate
func (d *FLACDecoder) SampleRate() int {
	return d.sampleRate
}

// NumFrames returns the total number of frames, 0 if STREAMINFO left it unset
func (d *FLACDecoder) NumFrames() int64 {
	return d.numFrames
}

// NumChannels returns the number of audio channels
func (d *FLACDecoder) NumChannels() int {
	return d.numChannels
}

// BitDepth returns the bits per sample
func (d *FLACDecoder) BitDepth() int {
	return d.bitDepth
}

// Close closes the decoder and releases resources
func (d *FLACDecoder) Close() error {
	if d.stream != nil {
		d.stream.Close()
		d.stream = nil
	}
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		// Stream.Close may already have closed the file
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}
