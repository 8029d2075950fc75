package gate

import "math"

// Detect marks each frame whose magnitude reaches the threshold. Samples are
// interleaved when channels > 1 and a frame's magnitude is the largest
// absolute value across its channels. A threshold of 0 opens every frame.
func Detect(samples []float64, channels int, threshold float64) ([]bool, error) {
	if !finite(threshold) || threshold < 0 {
		return nil, &ConfigError{Field: "volt_threshold", Reason: "must be a finite value >= 0"}
	}
	if channels < 1 {
		return nil, &DataError{Reason: "channel count must be at least 1"}
	}

	numFrames := len(samples) / channels
	above := make([]bool, numFrames)
	for i := 0; i < numFrames; i++ {
		above[i] = frameMagnitude(samples[i*channels:(i+1)*channels]) >= threshold
	}
	return above, nil
}

func frameMagnitude(frame []float64) float64 {
	peak := 0.0
	for _, s := range frame {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}
