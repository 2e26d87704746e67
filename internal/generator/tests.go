package generator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/scaliseraoul/ambrogio/internal/coverage"
	"github.com/scaliseraoul/ambrogio/internal/llm"
	"github.com/scaliseraoul/ambrogio/internal/pysrc"
)

const (
	maxSourceChars   = 12000
	maxArtifactChars = 12000
	maxErrorChars    = 4000
)

// TestRequest is everything one generation attempt needs. It is built fresh for every attempt.
type TestRequest struct {
	SourcePath    string
	Source        string
	Target        coverage.Range
	Context       []pysrc.Context
	PriorArtifact string
	PriorError    string
}

// Repair reports whether the request asks to fix a previous artifact instead of writing a new one.
func (r TestRequest) Repair() bool {
	return r.PriorArtifact != "" && r.PriorError != ""
}

const testSystemPrompt = "You are a test generator. Only output valid Python code without any explanations or markdown formatting."

const testRequirements = `Requirements:
1. ONLY output valid Python code, no explanations or markdown
2. Start with imports (pytest and the module being tested)
3. Use pytest fixtures where needed
4. Include positive and negative test cases
5. Add docstrings explaining each test
6. Use descriptive names: test_<function>_<scenario>
7. Include edge cases and boundary tests
8. Maintain proper indentation
9. DO NOT use markdown code blocks or any other formatting
10. DO NOT include any explanatory text, ONLY output the test code`

// GenerateTest asks the model for a pytest file covering req.Target, or for a repaired version of
// req.PriorArtifact when req.Repair() is true. Fences are stripped and the pytest and module imports
// are added when missing.
func (g *Generator) GenerateTest(ctx context.Context, req TestRequest) (string, error) {
	prompt := buildAuthorPrompt(req)
	if req.Repair() {
		prompt = buildRepairPrompt(req)
	}

	raw, err := g.complete(ctx, llm.RouteTest, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: testSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}

	content := StripFences(raw)
	if content == "" {
		return "", &GenerationError{Route: llm.RouteTest, Err: ErrEmptyResponse}
	}
	return ensureImports(content, moduleName(req)), nil
}

// moduleName is the import name of the source file. pytest runs with the source directory on
// pythonpath, so the file stem is importable as is.
func moduleName(req TestRequest) string {
	base := filepath.Base(req.SourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ensureImports prepends "import pytest" and "from <module> import *" when absent.
func ensureImports(content, module string) string {
	var imports []string
	if !strings.Contains(content, "import pytest") {
		imports = append(imports, "import pytest")
	}
	if module != "" {
		star := fmt.Sprintf("from %s import *", module)
		if !strings.Contains(content, star) {
			imports = append(imports, star)
		}
	}
	if len(imports) == 0 {
		return content + "\n"
	}
	return strings.Join(imports, "\n") + "\n\n" + content + "\n"
}

func buildAuthorPrompt(req TestRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate pytest test cases for %s. Focus on testing lines %s.\n\n",
		filepath.Base(req.SourcePath), req.Target)
	writeCodeUnderTest(&b, req)
	b.WriteString("\n")
	b.WriteString(testRequirements)
	return b.String()
}

func buildRepairPrompt(req TestRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The pytest file below was written for %s to cover lines %s, but it fails.\n\n",
		filepath.Base(req.SourcePath), req.Target)
	b.WriteString("Previous test file:\n")
	b.WriteString(truncateForPrompt(strings.TrimSpace(req.PriorArtifact), maxArtifactChars))
	b.WriteString("\n\nFailure output:\n")
	b.WriteString(truncateForPrompt(strings.TrimSpace(req.PriorError), maxErrorChars))
	b.WriteString("\n\n")
	writeCodeUnderTest(&b, req)
	b.WriteString("\nRepair the test file. Keep every assertion that passes exactly as it is and only fix or remove ")
	b.WriteString("the failing parts. Output the complete corrected file.\n\n")
	b.WriteString(testRequirements)
	return b.String()
}

func writeCodeUnderTest(b *strings.Builder, req TestRequest) {
	b.WriteString("Code to test:\n")
	if len(req.Context) == 0 {
		b.WriteString(truncateForPrompt(req.Source, maxSourceChars))
		if !strings.HasSuffix(req.Source, "\n") {
			b.WriteString("\n")
		}
		return
	}
	for _, c := range req.Context {
		fmt.Fprintf(b, "# %s %s\n", c.Kind, c.Name)
		fmt.Fprintf(b, "# Missing coverage on lines: %v\n", c.Lines)
		b.WriteString(c.Code)
		b.WriteString("\n\n")
	}
}
