package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingCredential is returned when a provider needs an API key and none was supplied.
var ErrMissingCredential = errors.New("missing API credential")

// CredentialEnv is the environment variable consulted last when resolving the API key.
const CredentialEnv = "OPENAI_API_KEY"

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Docstring DocstringConfig `mapstructure:"docstring"`
	Coverage  CoverageConfig  `mapstructure:"coverage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LLMConfig selects the generation backend shared by every command.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider" validate:"required,oneof=openai ollama"`
	Model             string        `mapstructure:"model" validate:"required"`
	APIKey            string        `mapstructure:"api_key"`
	APIBase           string        `mapstructure:"api_base" validate:"omitempty,url"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Temperature       float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `mapstructure:"max_tokens" validate:"gte=0"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"gte=0"` // 0 = unlimited
}

// DocstringConfig configures the docstring fixer.
type DocstringConfig struct {
	Model       string  `mapstructure:"model"` // overrides llm.model for docstrings
	MaxAPICalls int     `mapstructure:"max_api_calls" validate:"gt=0"`
	MinCoverage float64 `mapstructure:"min_coverage" validate:"gte=0,lte=100"`
	MaxTokens   int     `mapstructure:"max_tokens" validate:"gte=0"`
	Concurrency int     `mapstructure:"concurrency" validate:"gte=1"`
}

// CoverageConfig configures the test-generation feedback loop.
type CoverageConfig struct {
	Model          string        `mapstructure:"model"` // overrides llm.model for tests
	MaxIterations  int           `mapstructure:"max_iterations" validate:"gt=0"`
	Selection      string        `mapstructure:"selection" validate:"oneof=lowest random"`
	Runs           int           `mapstructure:"runs" validate:"gte=1"`
	Python         string        `mapstructure:"python" validate:"required"`
	TestTimeout    time.Duration `mapstructure:"test_timeout" validate:"gte=0"`
	MeasureTimeout time.Duration `mapstructure:"measure_timeout" validate:"gte=0"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// TelemetryConfig controls metrics and trace export.
type TelemetryConfig struct {
	MetricsFile  string `mapstructure:"metrics_file"`
	TraceFile    string `mapstructure:"trace_file"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Load reads configuration from the provided path, or from an optional ambrogio.yaml / .ambrogio.yaml
// in the working directory. A .env file in the working directory is loaded into the environment first.
// Environment variables override file values (prefix: AMBROGIO_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AMBROGIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if found := findDefaultConfig(); found != "" {
		v.SetConfigFile(found)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", found, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func findDefaultConfig() string {
	for _, name := range []string{"ambrogio.yaml", "ambrogio.yml", ".ambrogio.yaml", ".ambrogio.yml"} {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name
		}
	}
	return ""
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_base", "")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("docstring.model", "")
	v.SetDefault("docstring.max_api_calls", 12)
	v.SetDefault("docstring.min_coverage", 100.0)
	v.SetDefault("docstring.max_tokens", 500)
	v.SetDefault("docstring.concurrency", 4)

	v.SetDefault("coverage.model", "")
	v.SetDefault("coverage.max_iterations", 3)
	v.SetDefault("coverage.selection", "lowest")
	v.SetDefault("coverage.runs", 1)
	v.SetDefault("coverage.python", "python3")
	v.SetDefault("coverage.test_timeout", "5m")
	v.SetDefault("coverage.measure_timeout", "30m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("telemetry.metrics_file", "")
	v.SetDefault("telemetry.trace_file", "")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "ambrogio")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs sanity checks on configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", configKey(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console or json, got %q", c.Logging.Format)
	}

	if c.Telemetry.TraceFile != "" && c.Telemetry.OTLPEndpoint != "" {
		return errors.New("telemetry.trace_file and telemetry.otlp_endpoint are mutually exclusive")
	}

	return nil
}

// configKey turns a validator namespace such as Config.LLM.APIBase into a readable key path.
func configKey(ns string) string {
	return strings.ToLower(strings.TrimPrefix(ns, "Config."))
}

// NeedsCredential reports whether the configured provider requires an API key.
func (c *Config) NeedsCredential() bool {
	return c.LLM.Provider != "ollama"
}

// ResolveAPIKey picks the credential from the flag value, then llm.api_key (AMBROGIO_LLM_API_KEY),
// then OPENAI_API_KEY. It fails with ErrMissingCredential when the provider needs a key and none is set.
func (c *Config) ResolveAPIKey(flagValue string) (string, error) {
	for _, candidate := range []string{flagValue, c.LLM.APIKey, os.Getenv(CredentialEnv)} {
		if key := strings.TrimSpace(candidate); key != "" {
			return key, nil
		}
	}
	if !c.NeedsCredential() {
		return "", nil
	}
	return "", fmt.Errorf("%w: pass --api-key or set the %s environment variable", ErrMissingCredential, CredentialEnv)
}

// DocstringModel returns the model used for docstring generation.
func (c *Config) DocstringModel() string {
	if m := strings.TrimSpace(c.Docstring.Model); m != "" {
		return m
	}
	return c.LLM.Model
}

// TestModel returns the model used for test generation.
func (c *Config) TestModel() string {
	if m := strings.TrimSpace(c.Coverage.Model); m != "" {
		return m
	}
	return c.LLM.Model
}
