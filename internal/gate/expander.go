package gate

// Run is a maximal range of frames sharing one mask value. End is inclusive.
type Run struct {
	Start int
	End   int
	Value bool
}

// Len returns the number of frames in the run
func (r Run) Len() int {
	return r.End - r.Start + 1
}

// Runs splits a mask into its maximal same-value runs
func Runs(mask []bool) []Run {
	var runs []Run
	start := 0
	for i := 1; i <= len(mask); i++ {
		if i == len(mask) || mask[i] != mask[start] {
			runs = append(runs, Run{Start: start, End: i - 1, Value: mask[start]})
			start = i
		}
	}
	return runs
}

// Expand dilates the true frames of above by padding frames on each side,
// clipped at the buffer edges. Each true run is widened and a coverage cursor
// skips frames an earlier widened run already set, so every frame is written
// at most once whatever the padding.
func Expand(above []bool, padding int) []bool {
	expanded := make([]bool, len(above))
	if padding <= 0 {
		copy(expanded, above)
		return expanded
	}

	covered := -1 // last index already set to true
	for _, run := range Runs(above) {
		if !run.Value {
			continue
		}
		from := max(run.Start-padding, covered+1, 0)
		to := min(run.End+padding, len(above)-1)
		for i := from; i <= to; i++ {
			expanded[i] = true
		}
		if to > covered {
			covered = to
		}
	}
	return expanded
}
