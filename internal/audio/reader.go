package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ReadWAV reads a whole WAV file into memory as raw interleaved PCM values.
// Use NewWAVDecoder for files too large to buffer.
func ReadWAV(filename string) ([]float64, *Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, nil, fmt.Errorf("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, nil, err
	}

	samples := make([]float64, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float64(s)
	}

	channels := int(decoder.NumChans)
	meta := &Metadata{
		Format:     "wav",
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   int(decoder.BitDepth),
		NumFrames:  int64(len(samples) / max(channels, 1)),
	}
	if meta.SampleRate > 0 {
		meta.Duration = float64(meta.NumFrames) / float64(meta.SampleRate)
	}
	return samples, meta, nil
}
