package docstring

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scaliseraoul/ambrogio/internal/generator"
	"github.com/scaliseraoul/ambrogio/internal/pysrc"
	"github.com/scaliseraoul/ambrogio/internal/repo"
)

const calcSource = `def add(a, b):
    return a + b


def sub(a, b):
    """Subtract."""
    return a - b


def _private():
    pass


class Calc:
    def mul(self, a, b): return a * b
`

const calcDocumented = `def add(a, b):
    """Doc for add."""
    return a + b


def sub(a, b):
    """Subtract."""
    return a - b


def _private():
    pass


class Calc:
    """Doc for Calc."""
    def mul(self, a, b):
        """Doc for mul."""
        return a * b
`

func writeRepo(t *testing.T) *repo.Locator {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"calc.py":         calcSource,
		"pkg/empty.py":    "X = 1\n",
		"broken.py":       "def broken(:\n",
		".venv/lib.py":    "def hidden():\n    pass\n",
		"pkg/__init__.py": "",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	loc, err := repo.Locate(dir)
	require.NoError(t, err)
	return loc
}

type fakeGenerator struct {
	fail  map[string]bool
	names []string
}

func (g *fakeGenerator) GenerateDocstring(_ context.Context, req generator.DocstringRequest) (string, error) {
	g.names = append(g.names, req.Name)
	if g.fail[req.Name] {
		return "", &generator.GenerationError{Route: "docstring", Err: generator.ErrEmptyResponse}
	}
	return "Doc for " + req.Name + ".", nil
}

type countingRecorder struct{ n int }

func (r *countingRecorder) RecordDocstringsInserted(n int) { r.n += n }

func readFile(t *testing.T, loc *repo.Locator, rel string) string {
	t.Helper()
	data, err := os.ReadFile(loc.Abs(rel))
	require.NoError(t, err)
	return string(data)
}

func TestScan(t *testing.T) {
	loc := writeRepo(t)
	report, err := NewScanner(loc, 2, nil).Scan(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"broken.py"}, report.Skipped)
	require.Len(t, report.Files, 3)
	require.Equal(t, FileCoverage{Path: "calc.py", Total: 4, Missing: 3, Percent: 25}, report.Files[0])
	require.Equal(t, FileCoverage{Path: filepath.Join("pkg", "__init__.py"), Percent: 100}, report.Files[1])
	require.Equal(t, FileCoverage{Path: filepath.Join("pkg", "empty.py"), Percent: 100}, report.Files[2])
	require.Equal(t, 4, report.Total)
	require.Equal(t, 1, report.Documented)
	require.Equal(t, 3, report.Missing)
	require.InDelta(t, 25.0, report.Percent, 1e-9)

	below := report.BelowThreshold(100)
	require.Len(t, below, 1)
	require.Equal(t, "calc.py", below[0].Path)
	require.Empty(t, report.BelowThreshold(25))
}

func TestScanEmptyRepositoryIsFullyCovered(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644))
	loc, err := repo.Locate(dir)
	require.NoError(t, err)

	report, err := NewScanner(loc, 0, nil).Scan(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 100.0, report.Percent, 1e-9)
	require.Empty(t, report.BelowThreshold(100))
}

func TestFixerDocumentsEveryPublicDefinition(t *testing.T) {
	loc := writeRepo(t)
	gen := &fakeGenerator{}
	rec := &countingRecorder{}
	fixer := NewFixer(NewScanner(loc, 4, nil), loc, gen, FixerOptions{
		MaxAPICalls: 12,
		MinCoverage: 100,
		Metrics:     rec,
	})

	summary, err := fixer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"add", "Calc", "mul"}, gen.names)
	require.Equal(t, 3, summary.APICalls)
	require.Equal(t, 3, summary.Inserted)
	require.Equal(t, []string{"calc.py"}, summary.ModifiedFiles)
	require.InDelta(t, 25.0, summary.Before.Percent, 1e-9)
	require.InDelta(t, 100.0, summary.After.Percent, 1e-9)
	require.Equal(t, 3, rec.n)

	require.Equal(t, calcDocumented, readFile(t, loc, "calc.py"))
	require.Equal(t, "def broken(:\n", readFile(t, loc, "broken.py"))
}

func TestFixerStopsAtAPICallBudget(t *testing.T) {
	loc := writeRepo(t)
	gen := &fakeGenerator{}
	fixer := NewFixer(NewScanner(loc, 1, nil), loc, gen, FixerOptions{MaxAPICalls: 2, MinCoverage: 100})

	summary, err := fixer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"add", "Calc"}, gen.names)
	require.Equal(t, 2, summary.APICalls)
	require.Equal(t, 2, summary.Inserted)
	require.Equal(t, 1, summary.After.Missing)
	require.Contains(t, readFile(t, loc, "calc.py"), "    def mul(self, a, b): return a * b\n")
}

func TestFixerSkipsFailedGenerationsWithoutRetry(t *testing.T) {
	loc := writeRepo(t)
	gen := &fakeGenerator{fail: map[string]bool{"add": true}}
	fixer := NewFixer(NewScanner(loc, 1, nil), loc, gen, FixerOptions{MaxAPICalls: 12, MinCoverage: 100})

	summary, err := fixer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"add", "Calc", "mul"}, gen.names)
	require.Equal(t, 3, summary.APICalls)
	require.Equal(t, 2, summary.Inserted)

	content := readFile(t, loc, "calc.py")
	require.True(t, strings.HasPrefix(content, "def add(a, b):\n    return a + b\n"))
	require.Contains(t, content, `"""Doc for mul."""`)
}

func TestFixerRespectsThreshold(t *testing.T) {
	loc := writeRepo(t)
	gen := &fakeGenerator{}
	fixer := NewFixer(NewScanner(loc, 1, nil), loc, gen, FixerOptions{MaxAPICalls: 12, MinCoverage: 20})

	summary, err := fixer.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, gen.names)
	require.Zero(t, summary.Inserted)
	require.Equal(t, calcSource, readFile(t, loc, "calc.py"))
}

func TestFixerDryRunPrintsDiff(t *testing.T) {
	loc := writeRepo(t)
	var out bytes.Buffer
	fixer := NewFixer(NewScanner(loc, 1, nil), loc, &fakeGenerator{}, FixerOptions{
		MaxAPICalls: 12,
		MinCoverage: 100,
		DryRun:      true,
		Out:         &out,
	})

	summary, err := fixer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, calcSource, readFile(t, loc, "calc.py"))
	require.Equal(t, 3, summary.Inserted)
	require.Equal(t, []string{"calc.py"}, summary.ModifiedFiles)
	require.Equal(t, summary.Before, summary.After)

	patch := out.String()
	require.Contains(t, patch, "--- a/calc.py\n+++ b/calc.py\n")
	require.Contains(t, patch, "\n+    \"\"\"Doc for add.\"\"\"\n")
	require.Contains(t, patch, "\n-    def mul(self, a, b): return a * b\n")
	require.Contains(t, patch, "\n+        return a * b\n")
}

func TestFixerInteractiveDecline(t *testing.T) {
	loc := writeRepo(t)
	var asked []string
	confirm := ConfirmFunc(func(_ context.Context, path string) (bool, error) {
		asked = append(asked, path)
		return false, nil
	})
	fixer := NewFixer(NewScanner(loc, 1, nil), loc, &fakeGenerator{}, FixerOptions{
		MaxAPICalls: 12,
		MinCoverage: 100,
		Confirmer:   confirm,
	})

	summary, err := fixer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"calc.py"}, asked)
	require.Empty(t, summary.ModifiedFiles)
	require.Equal(t, calcSource, readFile(t, loc, "calc.py"))
}

func TestFixerInteractiveAbortStopsRun(t *testing.T) {
	loc := writeRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fixer := NewFixer(NewScanner(loc, 1, nil), loc, &fakeGenerator{}, FixerOptions{
		MaxAPICalls: 12,
		MinCoverage: 100,
		Confirmer: ConfirmFunc(func(context.Context, string) (bool, error) {
			cancel()
			return false, context.Canceled
		}),
	})

	_, err := fixer.Run(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, calcSource, readFile(t, loc, "calc.py"))
}

func lineOffset(src string, line int) int {
	off := 0
	for i := 1; i < line; i++ {
		off += strings.IndexByte(src[off:], '\n') + 1
	}
	return off
}

func TestBuildFileDiffSingleInsertion(t *testing.T) {
	src := "def f():\n    return 1\n"
	off := lineOffset(src, 2)
	fd, err := buildFileDiff("f.py", []byte(src), []pysrc.Edit{{Start: off, End: off, Text: "    \"\"\"Doc.\"\"\"\n"}})
	require.NoError(t, err)
	require.Len(t, fd.Hunks, 1)

	h := fd.Hunks[0]
	require.EqualValues(t, 1, h.OrigStartLine)
	require.EqualValues(t, 2, h.OrigLines)
	require.EqualValues(t, 1, h.NewStartLine)
	require.EqualValues(t, 3, h.NewLines)
	require.Equal(t, " def f():\n+    \"\"\"Doc.\"\"\"\n     return 1\n", string(h.Body))
}

func TestBuildFileDiffSplitsDistantChanges(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 20; i++ {
		b.WriteString("l")
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("\n")
	}
	src := b.String()
	first, second := lineOffset(src, 2), lineOffset(src, 18)

	fd, err := buildFileDiff("f.py", []byte(src), []pysrc.Edit{
		{Start: first, End: first, Text: "new1\n"},
		{Start: second, End: second, Text: "new2\n"},
	})
	require.NoError(t, err)
	require.Len(t, fd.Hunks, 2)

	require.EqualValues(t, 1, fd.Hunks[0].OrigStartLine)
	require.EqualValues(t, 4, fd.Hunks[0].OrigLines)
	require.EqualValues(t, 1, fd.Hunks[0].NewStartLine)
	require.EqualValues(t, 5, fd.Hunks[0].NewLines)

	require.EqualValues(t, 15, fd.Hunks[1].OrigStartLine)
	require.EqualValues(t, 6, fd.Hunks[1].OrigLines)
	require.EqualValues(t, 16, fd.Hunks[1].NewStartLine)
	require.EqualValues(t, 7, fd.Hunks[1].NewLines)

	near := lineOffset(src, 6)
	fd, err = buildFileDiff("f.py", []byte(src), []pysrc.Edit{
		{Start: first, End: first, Text: "new1\n"},
		{Start: near, End: near, Text: "new2\n"},
	})
	require.NoError(t, err)
	require.Len(t, fd.Hunks, 1)
}

func TestUnifiedDiffWithoutEditsIsEmpty(t *testing.T) {
	out, err := UnifiedDiff("f.py", []byte("x = 1\n"), nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
