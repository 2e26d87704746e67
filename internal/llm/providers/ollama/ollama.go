package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"

	"github.com/scaliseraoul/ambrogio/internal/llm"
)

// contentGenerator is the slice of langchaingo's llms.Model the provider needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Provider implements a chat provider backed by a local Ollama server.
type Provider struct {
	name  string
	model contentGenerator
}

// NewProvider constructs an Ollama provider. defaultModel is used when a request carries none.
func NewProvider(name, baseURL, defaultModel string, timeout time.Duration) (*Provider, error) {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	client, err := lcollama.New(
		lcollama.WithServerURL(strings.TrimRight(baseURL, "/")),
		lcollama.WithModel(defaultModel),
		lcollama.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &Provider{name: name, model: client}, nil
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Chat executes a non-streaming chat completion.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if req.Model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}

	msgs := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, llms.TextParts(toMessageType(m.Role), m.Content))
	}

	opts := []llms.CallOption{
		llms.WithModel(req.Model),
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := p.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("ollama generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("empty choices in response")
	}

	choice := resp.Choices[0]
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: choice.Content,
		},
		FinishReason: choice.StopReason,
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

func toMessageType(r llm.Role) llms.ChatMessageType {
	switch r {
	case llm.RoleSystem:
		return llms.ChatMessageTypeSystem
	case llm.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
