package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Metadata holds information about an audio file
type Metadata struct {
	Format     string // "wav", "flac" or "mp3"
	SampleRate int
	Channels   int
	BitDepth   int
	NumFrames  int64
	Duration   float64 // in seconds
}

// metadataFrom reads format details from an open decoder
func metadataFrom(format string, d AudioDecoder) *Metadata {
	meta := &Metadata{
		Format:     format,
		SampleRate: d.SampleRate(),
		Channels:   d.NumChannels(),
		BitDepth:   d.BitDepth(),
		NumFrames:  d.NumFrames(),
	}
	if meta.SampleRate > 0 {
		meta.Duration = float64(meta.NumFrames) / float64(meta.SampleRate)
	}
	return meta
}

// Open picks a decoder from the file extension and returns it with the
// file's metadata. The caller must Close the decoder.
func Open(filename string) (AudioDecoder, *Metadata, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	var (
		d   AudioDecoder
		err error
	)
	switch format {
	case "wav", "wave":
		format = "wav"
		d, err = NewWAVDecoder(filename)
	case "flac":
		d, err = NewFLACDecoder(filename)
	case "mp3":
		d, err = NewMP3Decoder(filename)
	default:
		return nil, nil, fmt.Errorf("unsupported audio format %q (want .wav, .flac or .mp3)", filepath.Ext(filename))
	}
	if err != nil {
		return nil, nil, err
	}

	return d, metadataFrom(format, d), nil
}
