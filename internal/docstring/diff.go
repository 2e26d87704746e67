package docstring

import (
	"bytes"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/scaliseraoul/ambrogio/internal/pysrc"
)

const contextLines = 3

// change replaces removed lines starting at orig (0-based) with added lines.
type change struct {
	orig    int
	removed []string
	added   []string
}

// UnifiedDiff renders the edits applied to src as a unified diff for rel. It returns "" when the
// edits change nothing.
func UnifiedDiff(rel string, src []byte, edits []pysrc.Edit) (string, error) {
	fd, err := buildFileDiff(rel, src, edits)
	if err != nil || fd == nil {
		return "", err
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func buildFileDiff(rel string, src []byte, edits []pysrc.Edit) (*diff.FileDiff, error) {
	changes, err := lineChanges(src, edits)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return &diff.FileDiff{
		OrigName: "a/" + rel,
		NewName:  "b/" + rel,
		Hunks:    hunks(splitLines(string(src)), changes),
	}, nil
}

// lineChanges widens each edit to whole lines, merges edits sharing a line and drops the lines
// both sides have in common.
func lineChanges(src []byte, edits []pysrc.Edit) ([]change, error) {
	type region struct {
		start, end int
		edits      []pysrc.Edit
	}
	var regions []region
	for _, e := range edits {
		start := bytes.LastIndexByte(src[:e.Start], '\n') + 1
		end := e.End
		if end > start || e.Start != start {
			if i := bytes.IndexByte(src[end:], '\n'); i >= 0 {
				end += i + 1
			} else {
				end = len(src)
			}
		}
		if n := len(regions); n > 0 && start < regions[n-1].end {
			last := &regions[n-1]
			last.end = max(last.end, end)
			last.edits = append(last.edits, e)
			continue
		}
		regions = append(regions, region{start: start, end: end, edits: []pysrc.Edit{e}})
	}

	var out []change
	for _, r := range regions {
		shifted := make([]pysrc.Edit, len(r.edits))
		for i, e := range r.edits {
			shifted[i] = pysrc.Edit{Start: e.Start - r.start, End: e.End - r.start, Text: e.Text}
		}
		seg := src[r.start:r.end]
		updated, err := pysrc.ApplyEdits(seg, shifted)
		if err != nil {
			return nil, err
		}

		removed := splitLines(string(seg))
		added := splitLines(string(updated))
		orig := bytes.Count(src[:r.start], []byte("\n"))

		for len(removed) > 0 && len(added) > 0 && removed[0] == added[0] {
			removed, added = removed[1:], added[1:]
			orig++
		}
		for len(removed) > 0 && len(added) > 0 && removed[len(removed)-1] == added[len(added)-1] {
			removed, added = removed[:len(removed)-1], added[:len(added)-1]
		}
		if len(removed) == 0 && len(added) == 0 {
			continue
		}
		out = append(out, change{orig: orig, removed: removed, added: added})
	}
	return out, nil
}

// hunks groups changes closer than twice the context size and surrounds each group with context.
func hunks(orig []string, changes []change) []*diff.Hunk {
	var out []*diff.Hunk
	delta := 0 // new line index minus original line index before the current change
	for i := 0; i < len(changes); {
		j := i + 1
		for j < len(changes) && changes[j].orig-(changes[j-1].orig+len(changes[j-1].removed)) <= 2*contextLines {
			j++
		}
		group := changes[i:j]

		first := group[0]
		last := group[len(group)-1]
		start := max(0, first.orig-contextLines)
		end := min(len(orig), last.orig+len(last.removed)+contextLines)

		var body bytes.Buffer
		var origN, newN int
		cursor, groupDelta := start, delta
		for _, c := range group {
			for ; cursor < c.orig; cursor++ {
				writeLine(&body, ' ', orig[cursor])
				origN++
				newN++
			}
			for _, l := range c.removed {
				writeLine(&body, '-', l)
				origN++
			}
			for _, l := range c.added {
				writeLine(&body, '+', l)
				newN++
			}
			cursor += len(c.removed)
			delta += len(c.added) - len(c.removed)
		}
		for ; cursor < end; cursor++ {
			writeLine(&body, ' ', orig[cursor])
			origN++
			newN++
		}

		out = append(out, &diff.Hunk{
			OrigStartLine: int32(start + 1),
			OrigLines:     int32(origN),
			NewStartLine:  int32(start + groupDelta + 1),
			NewLines:      int32(newN),
			Body:          body.Bytes(),
		})
		i = j
	}
	return out
}

func writeLine(b *bytes.Buffer, prefix byte, line string) {
	b.WriteByte(prefix)
	b.WriteString(line)
	b.WriteByte('\n')
}

// splitLines splits s into lines without their terminators. A trailing newline does not start a new line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
