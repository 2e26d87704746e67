package configbuilder

import (
	"fmt"

	"github.com/scaliseraoul/ambrogio/internal/config"
	"github.com/scaliseraoul/ambrogio/internal/llm"
	llmollama "github.com/scaliseraoul/ambrogio/internal/llm/providers/ollama"
	llmopenai "github.com/scaliseraoul/ambrogio/internal/llm/providers/openai"
)

// BuildRegistryFromConfig constructs the provider and the docstring/test routes from config.
// apiKey is the already-resolved credential.
func BuildRegistryFromConfig(cfg *config.Config, apiKey string) (*llm.Registry, error) {
	p, err := buildProvider(cfg.LLM, apiKey)
	if err != nil {
		return nil, err
	}

	reg := llm.NewRegistry()
	reg.RegisterProvider(cfg.LLM.Provider, p)

	maxTokens := cfg.LLM.MaxTokens
	reg.RegisterModel(llm.RouteTest, llm.ModelRoute{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.TestModel(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   maxTokens,
	}, true)

	docTokens := cfg.Docstring.MaxTokens
	if docTokens == 0 {
		docTokens = maxTokens
	}
	reg.RegisterModel(llm.RouteDocstring, llm.ModelRoute{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.DocstringModel(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   docTokens,
	}, false)

	if _, _, err := reg.Resolve(""); err != nil {
		return nil, err
	}

	return reg, nil
}

func buildProvider(cfg config.LLMConfig, apiKey string) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return llmopenai.NewProvider(cfg.Provider, cfg.APIBase, apiKey, cfg.Timeout), nil
	case "ollama":
		return llmollama.NewProvider(cfg.Provider, cfg.APIBase, cfg.Model, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider)
	}
}
