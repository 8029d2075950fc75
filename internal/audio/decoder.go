package audio

// AudioDecoder defines the interface for all audio format decoders.
// Samples are raw PCM values (not normalised) so amplitude thresholds are
// expressed in the file's own units. Multi-channel audio is interleaved.
type AudioDecoder interface {
	// ReadChunk reads up to numFrames frames of interleaved samples
	// Returns io.EOF when no samples remain
	ReadChunk(numFrames int) ([]float64, error)

	// SampleRate returns the audio sample rate in Hz
	SampleRate() int

	// NumFrames returns the total number of frames in the audio file
	// Returns 0 if the length is unknown
	NumFrames() int64

	// NumChannels returns the number of audio channels (1=mono, 2=stereo)
	NumChannels() int

	// BitDepth returns the bits per sample of the decoded PCM
	BitDepth() int

	// Close closes the decoder and releases resources
	Close() error
}
