package gate

// Shape turns a dilated mask into a gain curve in [0, 1].
//
// Every boundary between a false and a true run carries a linear ramp of
// slope 1/ramp centred on the half-sample position between the two frames:
// the attack rises from 0 to 1 across a false→true boundary and the release
// falls from 1 to 0 across a true→false boundary. A frame's value depends only
// on its distance d to the nearest frame of the opposite state:
//
//	true frame:  clamp(0.5 + (d-0.5)/ramp, 0, 1)
//	false frame: clamp(0.5 - (d-0.5)/ramp, 0, 1)
//
// Taking the nearest boundary is the same as taking the minimum of both ramps
// inside a true run and the maximum inside a false run, so runs shorter than
// 2*ramp get overlapping ramps that still meet continuously. Buffer edges are
// not boundaries. With ramp == 1 the curve equals the mask.
func Shape(mask []bool, ramp int) []float64 {
	if ramp < 1 {
		ramp = 1
	}
	curve := make([]float64, len(mask))
	last := len(mask) - 1

	for _, run := range Runs(mask) {
		hasLeft := run.Start > 0
		hasRight := run.End < last

		if !hasLeft && !hasRight {
			if run.Value {
				fill(curve[run.Start:run.End+1], 1)
			}
			continue
		}

		for i := run.Start; i <= run.End; i++ {
			d := run.Len() + 1
			if hasLeft {
				d = i - run.Start + 1
			}
			if hasRight {
				d = min(d, run.End-i+1)
			}
			curve[i] = rampValue(run.Value, d, ramp)
		}
	}
	return curve
}

// rampValue is the curve value for a frame d frames from the nearest opposite
// frame
func rampValue(open bool, d, ramp int) float64 {
	offset := (float64(d) - 0.5) / float64(ramp)
	if open {
		return clamp01(0.5 + offset)
	}
	return clamp01(0.5 - offset)
}

// ApplyCurve multiplies every sample by its frame's gain. Channels of one
// frame share a gain.
func ApplyCurve(samples []float64, channels int, curve []float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * curve[i/channels]
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func fill(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}
