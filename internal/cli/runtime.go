package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scaliseraoul/ambrogio/internal/config"
	"github.com/scaliseraoul/ambrogio/internal/generator"
	"github.com/scaliseraoul/ambrogio/internal/llm"
	"github.com/scaliseraoul/ambrogio/internal/llm/configbuilder"
	"github.com/scaliseraoul/ambrogio/internal/logging"
	"github.com/scaliseraoul/ambrogio/internal/observability"
	"github.com/scaliseraoul/ambrogio/internal/version"
)

// runtime is what every command needs once config is loaded. Close must be called on exit.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	shutdown func(context.Context) error
}

func newRuntime(ctx context.Context, opts *Options) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version.Version,
		TraceFile:      cfg.Telemetry.TraceFile,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.NewMetrics(),
		shutdown: shutdown,
	}, nil
}

// Close flushes spans and writes the metrics file.
func (r *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.metrics.WriteTextfile(r.cfg.Telemetry.MetricsFile); err != nil {
		r.logger.Warn("write metrics", zap.Error(err))
	}
	if err := r.shutdown(ctx); err != nil {
		r.logger.Warn("shutdown tracing", zap.Error(err))
	}
	_ = r.logger.Sync()
}

// llmFlags are shared by the commands that call the model.
type llmFlags struct {
	path    string
	apiKey  string
	model   string
	apiBase string
}

func (f *llmFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.path, "path", "", "Path to the Python repository (default: discovered from the working directory)")
	fs.StringVar(&f.apiKey, "api-key", "", "API key for the model provider (default: $"+config.CredentialEnv+")")
	fs.StringVar(&f.apiKey, "openai-key", "", "Alias of --api-key")
	_ = fs.MarkHidden("openai-key")
	fs.StringVar(&f.model, "model", "", "Model name")
	fs.StringVar(&f.apiBase, "api-base", "", "Base URL of an OpenAI compatible API or Ollama server")
}

// newGenerator resolves the credential and builds the model routes. route names the config section whose
// model --model overrides. It fails before any work when a required credential is missing.
func (r *runtime) newGenerator(f *llmFlags, route string) (*generator.Generator, error) {
	if f.apiBase != "" {
		r.cfg.LLM.APIBase = f.apiBase
	}
	if f.model != "" {
		switch route {
		case llm.RouteDocstring:
			r.cfg.Docstring.Model = f.model
		case llm.RouteTest:
			r.cfg.Coverage.Model = f.model
		}
	}

	key, err := r.cfg.ResolveAPIKey(f.apiKey)
	if err != nil {
		return nil, err
	}
	reg, err := configbuilder.BuildRegistryFromConfig(r.cfg, key)
	if err != nil {
		return nil, fmt.Errorf("build model registry: %w", err)
	}
	return generator.New(reg, generator.Options{
		RequestsPerMinute: r.cfg.LLM.RequestsPerMinute,
		Metrics:           r.metrics,
		Logger:            r.logger,
	}), nil
}
