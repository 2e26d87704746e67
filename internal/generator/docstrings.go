package generator

import (
	"context"
	"fmt"

	"github.com/scaliseraoul/ambrogio/internal/llm"
	"github.com/scaliseraoul/ambrogio/internal/pysrc"
)

// DocstringRequest identifies the definition to document.
type DocstringRequest struct {
	Name string
	Kind pysrc.Kind
	Code string
}

const docstringSystemPrompt = "You are a helpful assistant that generates clear and concise Python docstrings."

// GenerateDocstring asks for a Google style docstring and returns its bare text, without quotes or fences.
func (g *Generator) GenerateDocstring(ctx context.Context, req DocstringRequest) (string, error) {
	prompt := fmt.Sprintf(`Generate a concise but informative docstring for this Python %s %s:

%s

The docstring should follow Google style and include Args and Returns sections if applicable.
Focus on explaining what the code does, not how it does it.`, req.Kind, req.Name, truncateForPrompt(req.Code, maxSourceChars))

	raw, err := g.complete(ctx, llm.RouteDocstring, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: docstringSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}

	text := extractDocstringBody(StripFences(raw))
	if text == "" {
		return "", &GenerationError{Route: llm.RouteDocstring, Err: ErrEmptyResponse}
	}
	return text, nil
}
