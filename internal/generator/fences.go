package generator

import (
	"regexp"
	"strings"
)

var fenceLine = regexp.MustCompile("^\\s*```[\\w+.-]*\\s*$")

// StripFences removes markdown code fences. When the text holds fenced blocks, only their contents
// are kept, so prose around them is dropped as well.
func StripFences(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		inside  bool
		blocks  []string
		fenced  bool
		current []string
	)
	for _, line := range lines {
		if fenceLine.MatchString(line) {
			fenced = true
			if inside {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			inside = !inside
			continue
		}
		if inside {
			current = append(current, line)
		}
	}
	if inside && len(current) > 0 {
		// unterminated fence: keep what followed it
		blocks = append(blocks, strings.Join(current, "\n"))
	}

	out := text
	if fenced {
		out = strings.Join(blocks, "\n\n")
	}
	return strings.TrimSpace(out)
}

// extractDocstringBody returns the text between the first pair of triple quotes, or all of text
// when it carries none.
func extractDocstringBody(text string) string {
	for _, q := range []string{`"""`, `'''`} {
		i := strings.Index(text, q)
		if i < 0 {
			continue
		}
		rest := text[i+len(q):]
		if j := strings.Index(rest, q); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}
