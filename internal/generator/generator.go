// Package generator turns source code into pytest files and docstrings through an LLM.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scaliseraoul/ambrogio/internal/llm"
	"github.com/scaliseraoul/ambrogio/internal/logging"
)

// ErrEmptyResponse is wrapped by GenerationError when the model returns no usable content.
var ErrEmptyResponse = errors.New("empty response from model")

// GenerationError reports a failed or unusable model call.
type GenerationError struct {
	Route string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Route, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Resolver maps a route name to a provider and model.
type Resolver interface {
	Resolve(name string) (llm.Provider, llm.ModelRoute, error)
}

// Recorder receives per-call metrics.
type Recorder interface {
	RecordLLMCall(role string, duration time.Duration, err error)
}

// Options tune a Generator.
type Options struct {
	RequestsPerMinute int // 0 = unlimited
	Metrics           Recorder
	Logger            *zap.Logger
}

// Generator issues prompts through the routes of a registry.
type Generator struct {
	registry Resolver
	limiter  *rate.Limiter
	metrics  Recorder
	logger   *zap.Logger
}

// New constructs a Generator.
func New(reg Resolver, opts Options) *Generator {
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	return &Generator{
		registry: reg,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  opts.Metrics,
		logger:   logging.OrNop(opts.Logger),
	}
}

// complete sends messages on route and returns the trimmed reply.
func (g *Generator) complete(ctx context.Context, route string, msgs []llm.ChatMessage) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &GenerationError{Route: route, Err: err}
	}

	provider, mr, err := g.registry.Resolve(route)
	if err != nil {
		return "", &GenerationError{Route: route, Err: err}
	}

	start := time.Now()
	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       mr.Model,
		Messages:    msgs,
		MaxTokens:   mr.MaxTokens,
		Temperature: mr.Temperature,
	})
	elapsed := time.Since(start)
	if g.metrics != nil {
		g.metrics.RecordLLMCall(route, elapsed, err)
	}
	if err != nil {
		g.logger.Warn("model call failed", zap.String("route", route), zap.String("model", mr.Model), zap.Error(err))
		return "", &GenerationError{Route: route, Err: err}
	}

	g.logger.Debug("model call finished",
		zap.String("route", route),
		zap.String("model", mr.Model),
		zap.Duration("elapsed", elapsed),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", &GenerationError{Route: route, Err: ErrEmptyResponse}
	}
	return content, nil
}

func truncateForPrompt(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "... [truncated]"
}
