package coverage

import "fmt"

// Range is an inclusive span of 1-based line numbers.
type Range struct {
	Start int
	End   int
}

// Len returns the number of lines in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Lines expands the range into its line numbers.
func (r Range) Lines() []int {
	out := make([]int, 0, r.Len())
	for l := r.Start; l <= r.End; l++ {
		out = append(out, l)
	}
	return out
}

func (r Range) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Runs splits ascending, unique line numbers into maximal contiguous runs.
func Runs(lines []int) []Range {
	var out []Range
	for i, l := range lines {
		if i > 0 && l == lines[i-1]+1 {
			out[len(out)-1].End = l
			continue
		}
		out = append(out, Range{Start: l, End: l})
	}
	return out
}

// LongestRun returns the longest contiguous run in lines; ties go to the first one found.
// ok is false for an empty input.
func LongestRun(lines []int) (Range, bool) {
	var best Range
	found := false
	for _, r := range Runs(lines) {
		if !found || r.Len() > best.Len() {
			best = r
			found = true
		}
	}
	return best, found
}
