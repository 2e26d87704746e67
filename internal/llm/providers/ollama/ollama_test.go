package ollama

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/scaliseraoul/ambrogio/internal/llm"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func TestChat(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "pong", StopReason: "stop"}}}}
	p := &Provider{name: "ollama", model: fm}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:       "llama3",
		Temperature: 0.7,
		MaxTokens:   200,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "ping"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "pong", resp.Message.Content)
	require.Equal(t, "stop", resp.FinishReason)

	require.Len(t, fm.messages, 2)
	require.Equal(t, llms.ChatMessageTypeSystem, fm.messages[0].Role)
	require.Equal(t, llms.ChatMessageTypeHuman, fm.messages[1].Role)
	require.Equal(t, "llama3", fm.opts.Model)
	require.Equal(t, 200, fm.opts.MaxTokens)
	require.InDelta(t, 0.7, fm.opts.Temperature, 1e-9)
}

func TestChatErrors(t *testing.T) {
	t.Parallel()

	p := &Provider{name: "ollama", model: &fakeModel{err: errors.New("connection refused")}}
	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "llama3"})
	require.ErrorContains(t, err, "connection refused")

	p = &Provider{name: "ollama", model: &fakeModel{resp: &llms.ContentResponse{}}}
	_, err = p.Chat(context.Background(), llm.ChatRequest{Model: "llama3"})
	require.Error(t, err)

	_, err = p.Chat(context.Background(), llm.ChatRequest{})
	require.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	p, err := NewProvider("ollama", "http://localhost:11434/", "llama3", 0)
	require.NoError(t, err)
	require.Equal(t, "ollama", p.Name())
}
