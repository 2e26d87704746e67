package coverage

import (
	"sort"
)

// FileReport is the measured coverage of one source file.
type FileReport struct {
	Path       string // absolute
	Percent    float64
	Statements int
	Uncovered  []int // ascending, unique
}

// Report maps files to their coverage. It is built fresh by every measurement.
type Report struct {
	files map[string]FileReport
}

// NewReport normalises entries: files without executable statements are dropped and uncovered
// lines are sorted and de-duplicated.
func NewReport(entries []FileReport) Report {
	r := Report{files: make(map[string]FileReport, len(entries))}
	for _, e := range entries {
		if e.Statements <= 0 {
			continue
		}
		e.Uncovered = normalizeLines(e.Uncovered)
		r.files[e.Path] = e
	}
	return r
}

// Len returns the number of files in the report.
func (r Report) Len() int {
	return len(r.files)
}

// Lookup returns the entry for an absolute path.
func (r Report) Lookup(path string) (FileReport, bool) {
	fr, ok := r.files[path]
	return fr, ok
}

// Files returns every entry ordered by path.
func (r Report) Files() []FileReport {
	out := make([]FileReport, 0, len(r.files))
	for _, fr := range r.files {
		out = append(out, fr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Filter returns a report holding only the entries keep accepts.
func (r Report) Filter(keep func(FileReport) bool) Report {
	out := Report{files: make(map[string]FileReport, len(r.files))}
	for path, fr := range r.files {
		if keep(fr) {
			out.files[path] = fr
		}
	}
	return out
}

// Percent returns the statement-weighted coverage over all files, 100 for an empty report.
func (r Report) Percent() float64 {
	var total, missing int
	for _, fr := range r.files {
		total += fr.Statements
		missing += len(fr.Uncovered)
	}
	if total == 0 {
		return 100
	}
	return float64(total-missing) / float64(total) * 100
}

func normalizeLines(lines []int) []int {
	if len(lines) == 0 {
		return nil
	}
	out := append([]int(nil), lines...)
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
