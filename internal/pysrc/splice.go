package pysrc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidSplice is returned when inserting docstrings would leave the file with syntax errors.
var ErrInvalidSplice = errors.New("splice produced invalid python")

// Edit replaces src[Start:End] with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Insertion pairs a definition with the docstring text to add to it.
type Insertion struct {
	Def       Definition
	Docstring string
}

// Splice inserts each docstring as the leading statement of its definition's body. Every byte outside
// the inserted text is preserved. Definitions that already carry a docstring, or whose text formats to
// nothing, are skipped. The edits actually applied are returned alongside the new source.
func Splice(ctx context.Context, src []byte, ins []Insertion) ([]byte, []Edit, error) {
	edits := make([]Edit, 0, len(ins))
	for _, in := range ins {
		if in.Def.HasDocstring {
			continue
		}
		e, ok, err := PlanEdit(src, in.Def, in.Docstring)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", in.Def.QualifiedName, err)
		}
		if ok {
			edits = append(edits, e)
		}
	}
	if len(edits) == 0 {
		return src, nil, nil
	}

	out, err := ApplyEdits(src, edits)
	if err != nil {
		return nil, nil, err
	}

	before, err := Parse(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	hadErrors := before.HasErrors()
	before.Close()

	after, err := Parse(ctx, out)
	if err != nil {
		return nil, nil, err
	}
	defer after.Close()
	if !hadErrors && after.HasErrors() {
		return nil, nil, ErrInvalidSplice
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })
	return out, edits, nil
}

// PlanEdit computes the edit that adds docstring to def. ok is false when there is nothing to insert.
func PlanEdit(src []byte, def Definition, docstring string) (Edit, bool, error) {
	if def.bodyStart < 0 || def.bodyStart > len(src) {
		return Edit{}, false, errors.New("definition has no body")
	}
	nl := "\n"
	if bytes.Contains(src, []byte("\r\n")) {
		nl = "\r\n"
	}

	stmt := def.bodyStart
	lineStart := bytes.LastIndexByte(src[:stmt], '\n') + 1
	prefix := string(src[lineStart:stmt])

	if strings.TrimLeft(prefix, " \t") == "" {
		// body starts on its own line: new line above it with the same indent
		literal := FormatDocstring(docstring, prefix)
		if literal == "" {
			return Edit{}, false, nil
		}
		text := prefix + literal + "\n"
		return Edit{Start: lineStart, End: lineStart, Text: strings.ReplaceAll(text, "\n", nl)}, true, nil
	}

	// body on the header line (def f(): pass): move it down under the docstring
	headerStart := bytes.LastIndexByte(src[:def.StartByte], '\n') + 1
	indent := leadingWhitespace(string(src[headerStart:def.StartByte])) + indentUnit(src)
	literal := FormatDocstring(docstring, indent)
	if literal == "" {
		return Edit{}, false, nil
	}
	wsStart := stmt
	for wsStart > 0 && (src[wsStart-1] == ' ' || src[wsStart-1] == '\t') {
		wsStart--
	}
	text := "\n" + indent + literal + "\n" + indent
	return Edit{Start: wsStart, End: stmt, Text: strings.ReplaceAll(text, "\n", nl)}, true, nil
}

// ApplyEdits applies non-overlapping edits to src, last offset first.
func ApplyEdits(src []byte, edits []Edit) ([]byte, error) {
	sorted := append([]Edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	out := append([]byte(nil), src...)
	limit := len(src)
	for _, e := range sorted {
		if e.Start < 0 || e.End < e.Start || e.End > limit {
			return nil, fmt.Errorf("edit [%d,%d) out of range or overlapping", e.Start, e.End)
		}
		out = append(out[:e.Start], append([]byte(e.Text), out[e.End:]...)...)
		limit = e.Start
	}
	return out, nil
}

// FormatDocstring renders text as a triple-quoted literal. Continuation lines are prefixed with indent;
// multi-line docstrings close on their own line. Returns "" when text is blank.
func FormatDocstring(text, indent string) string {
	lines := cleandoc(text)
	if len(lines) == 0 {
		return ""
	}
	for i, l := range lines {
		l = strings.ReplaceAll(l, `\`, `\\`)
		l = strings.ReplaceAll(l, `"""`, `\"\"\"`)
		lines[i] = l
	}

	if len(lines) == 1 {
		line := lines[0]
		if strings.HasSuffix(line, `"`) {
			line = line[:len(line)-1] + `\"`
		}
		return `"""` + line + `"""`
	}

	var b strings.Builder
	b.WriteString(`"""`)
	b.WriteString(lines[0])
	for _, l := range lines[1:] {
		b.WriteString("\n")
		if l != "" {
			b.WriteString(indent)
			b.WriteString(l)
		}
	}
	b.WriteString("\n")
	b.WriteString(indent)
	b.WriteString(`"""`)
	return b.String()
}

// cleandoc trims the first line, removes the common indentation of the rest and drops
// leading and trailing blank lines.
func cleandoc(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	lines := strings.Split(text, "\n")

	margin := -1
	for _, l := range lines[1:] {
		trimmed := strings.TrimLeft(l, " ")
		if trimmed == "" {
			continue
		}
		if n := len(l) - len(trimmed); margin < 0 || n < margin {
			margin = n
		}
	}

	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		l := strings.TrimRight(lines[i], " ")
		if margin > 0 && len(l) >= margin {
			l = l[margin:]
		}
		lines[i] = l
	}

	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// indentUnit guesses the file's indentation step from its first indented line.
func indentUnit(src []byte) string {
	for _, line := range strings.Split(string(src), "\n") {
		ws := leadingWhitespace(line)
		if ws == "" || strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(ws, "\t") {
			return "\t"
		}
		return ws
	}
	return "    "
}
