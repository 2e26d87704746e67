package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scaliseraoul/ambrogio/internal/docstring"
	"github.com/scaliseraoul/ambrogio/internal/llm"
	"github.com/scaliseraoul/ambrogio/internal/repo"
)

// NewDocstringCmd adds generated docstrings to undocumented public functions and classes.
func NewDocstringCmd(opts *Options) *cobra.Command {
	var (
		lf          llmFlags
		maxAPICalls int
		minCoverage float64
		dryRun      bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "docstring",
		Short: "Add missing docstrings to public functions and classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if cmd.Flags().Changed("max-api-calls") {
				rt.cfg.Docstring.MaxAPICalls = maxAPICalls
			}
			if cmd.Flags().Changed("min-coverage") {
				rt.cfg.Docstring.MinCoverage = minCoverage
			}
			if rt.cfg.Docstring.MaxAPICalls <= 0 {
				return errors.New("--max-api-calls must be positive")
			}
			if interactive && dryRun {
				return errors.New("--interactive and --dry-run cannot be combined")
			}
			if interactive && !isTerminal(os.Stdin) {
				return errors.New("--interactive needs a terminal")
			}

			gen, err := rt.newGenerator(&lf, llm.RouteDocstring)
			if err != nil {
				return err
			}
			loc, err := repo.Locate(lf.path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Repository: %s\n", loc.Root())
			if !dryRun {
				warnUncommitted(cmd.Context(), loc.Root(), rt.logger)
			}

			fixOpts := docstring.FixerOptions{
				MaxAPICalls: rt.cfg.Docstring.MaxAPICalls,
				MinCoverage: rt.cfg.Docstring.MinCoverage,
				DryRun:      dryRun,
				Out:         out,
				Metrics:     rt.metrics,
				Logger:      rt.logger,
			}
			if interactive {
				fixOpts.Confirmer = docstring.PromptConfirmer{}
			}
			scanner := docstring.NewScanner(loc, rt.cfg.Docstring.Concurrency, rt.logger)
			summary, err := docstring.NewFixer(scanner, loc, gen, fixOpts).Run(cmd.Context())
			if err != nil {
				return err
			}

			rt.logger.Debug("docstring run finished",
				zap.Int("api_calls", summary.APICalls), zap.Int("inserted", summary.Inserted))
			printDocstringSummary(out, summary, rt.cfg.Docstring.MaxAPICalls, dryRun)
			fmt.Fprintln(out, farewell)
			return nil
		},
	}

	lf.register(cmd)
	cmd.Flags().IntVar(&maxAPICalls, "max-api-calls", 12, "Maximum number of model calls")
	cmd.Flags().Float64Var(&minCoverage, "min-coverage", 100, "Only fix files whose docstring coverage is below this percentage")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print a diff instead of writing files")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Ask before writing each file")
	return cmd
}

func printDocstringSummary(w io.Writer, s docstring.Summary, budget int, dryRun bool) {
	before := make(map[string]docstring.FileCoverage, len(s.Before.Files))
	for _, f := range s.Before.Files {
		before[f.Path] = f
	}

	rows := make([][]string, 0, len(s.After.Files))
	for _, f := range s.After.Files {
		prev, ok := before[f.Path]
		if !ok {
			prev = f
		}
		rows = append(rows, []string{
			f.Path,
			fmt.Sprintf("%d", f.Total),
			fmt.Sprintf("%d", f.Missing),
			formatPercent(prev.Percent),
			formatPercent(f.Percent),
		})
	}
	renderTable(w, "Docstring coverage", []string{"File", "Public", "Missing", "Before", "After"}, rows, -1)

	fmt.Fprintf(w, "Total coverage: %s -> %s\n", formatPercent(s.Before.Percent), formatPercent(s.After.Percent))
	for _, path := range s.Before.Skipped {
		fmt.Fprintf(w, "Skipped (syntax error): %s\n", path)
	}
	verb := "Modified"
	if dryRun {
		verb = "Would modify"
	}
	for _, path := range s.ModifiedFiles {
		fmt.Fprintf(w, "%s: %s\n", verb, path)
	}
	fmt.Fprintf(w, "Docstrings added: %d, API calls used: %d/%d\n", s.Inserted, s.APICalls, budget)
}
