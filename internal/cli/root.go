package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scaliseraoul/ambrogio/internal/config"
	"github.com/scaliseraoul/ambrogio/internal/version"
)

// farewell closes every successful docstring and coverage run.
const farewell = "Ambrogio: my work is done here, going to take a pizza 🍕"

// Options holds global CLI options.
type Options struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	MetricsFile string
	TraceFile   string
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "ambrogio",
		Short:         "Ambrogio – docstrings and test coverage for Python projects",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: ambrogio.yaml or .ambrogio.yaml)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.LogFormat, "log-format", "", "Log format: console or json")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	flags.StringVar(&opts.TraceFile, "trace-file", "", "Write OpenTelemetry spans to this file")

	cmd.AddCommand(NewDocstringCmd(opts))
	cmd.AddCommand(NewCoverageCmd(opts))
	cmd.AddCommand(NewStructureCmd(opts))
	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// loadConfig wraps config loading with shared options. Flag values win over the file and environment.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if opts.MetricsFile != "" {
		cfg.Telemetry.MetricsFile = opts.MetricsFile
	}
	if opts.TraceFile != "" {
		cfg.Telemetry.TraceFile = opts.TraceFile
		cfg.Telemetry.OTLPEndpoint = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
