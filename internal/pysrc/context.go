package pysrc

// Context is a definition that overlaps some set of target lines.
type Context struct {
	Name      string
	Kind      Kind
	StartLine int
	EndLine   int
	Code      string
	Lines     []int // target lines falling inside the definition
}

// ContextFor returns the outermost definitions containing any of lines, in source order.
// Definitions nested in an already selected one are skipped since their code is included.
func (f *File) ContextFor(lines []int) []Context {
	var out []Context
	var coveredUntil int
	for _, d := range f.Definitions() {
		if d.StartLine <= coveredUntil {
			continue
		}
		var hit []int
		for _, l := range lines {
			if l >= d.StartLine && l <= d.EndLine {
				hit = append(hit, l)
			}
		}
		if len(hit) == 0 {
			continue
		}
		out = append(out, Context{
			Name:      d.QualifiedName,
			Kind:      d.Kind,
			StartLine: d.StartLine,
			EndLine:   d.EndLine,
			Code:      d.Code,
			Lines:     hit,
		})
		coveredUntil = d.EndLine
	}
	return out
}
