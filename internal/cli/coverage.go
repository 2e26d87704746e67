package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/scaliseraoul/ambrogio/internal/config"
	"github.com/scaliseraoul/ambrogio/internal/coverage"
	"github.com/scaliseraoul/ambrogio/internal/llm"
	"github.com/scaliseraoul/ambrogio/internal/pipeline"
	"github.com/scaliseraoul/ambrogio/internal/repo"
	"github.com/scaliseraoul/ambrogio/internal/testrunner"
	"github.com/scaliseraoul/ambrogio/internal/tools"
)

// errLoopFailed makes the command exit non-zero; the reason has already been printed.
var errLoopFailed = errors.New("coverage loop failed")

// NewCoverageCmd generates pytest files for the least covered code until they pass.
func NewCoverageCmd(opts *Options) *cobra.Command {
	var (
		lf            llmFlags
		maxIterations int
		selection     string
		runs          int
	)

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Generate tests for uncovered code and repair them until they pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if cmd.Flags().Changed("max-iterations") {
				rt.cfg.Coverage.MaxIterations = maxIterations
			}
			if cmd.Flags().Changed("selection") {
				rt.cfg.Coverage.Selection = selection
			}
			if cmd.Flags().Changed("runs") {
				rt.cfg.Coverage.Runs = runs
			}
			if err := rt.cfg.Validate(); err != nil {
				return err
			}

			gen, err := rt.newGenerator(&lf, llm.RouteTest)
			if err != nil {
				return err
			}
			loc, err := repo.Locate(lf.path)
			if err != nil {
				return err
			}
			selector, err := coverage.NewSelector(rt.cfg.Coverage.Selection, uint64(time.Now().UnixNano()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Repository: %s\n", loc.Root())

			cc := rt.cfg.Coverage
			analyzer := coverage.NewAnalyzer(loc.Root(), cc.Python, pythonTerminal(loc.Root(), cc, cc.MeasureTimeout), rt.logger)
			runner := testrunner.New(cc.Python, pythonTerminal(loc.Root(), cc, cc.TestTimeout), rt.logger)
			loop := pipeline.New(analyzer, gen, runner, pipeline.Options{
				MaxIterations: cc.MaxIterations,
				Root:          loc.Root(),
				Selector:      selector,
				Metrics:       rt.metrics,
				Logger:        rt.logger,
				OnTransition:  progressPrinter(out, loc),
			})

			var results []pipeline.Result
			for i := 0; i < cc.Runs; i++ {
				res := loop.Run(cmd.Context())
				results = append(results, res)
				if !res.Success {
					break
				}
			}
			printCoverageSummary(out, loc, results)

			if last := results[len(results)-1]; !last.Success {
				fmt.Fprintf(out, "Failed: %s\n", last.Reason)
				return errLoopFailed
			}
			fmt.Fprintln(out, farewell)
			return nil
		},
	}

	lf.register(cmd)
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 3, "Maximum generation attempts per target")
	cmd.Flags().StringVar(&selection, "selection", coverage.PolicyLowest, "Target selection: lowest or random")
	cmd.Flags().IntVar(&runs, "runs", 1, "Number of targets to improve, one after another")
	return cmd
}

// pythonTerminal runs only the configured interpreter, from the repository root.
func pythonTerminal(root string, cc config.CoverageConfig, timeout time.Duration) *tools.Terminal {
	return &tools.Terminal{
		WorkingDir: root,
		Allowed:    []string{cc.Python},
		Timeout:    timeout,
	}
}

func progressPrinter(w io.Writer, loc *repo.Locator) func(from, to pipeline.State, s *pipeline.Session) {
	return func(from, to pipeline.State, s *pipeline.Session) {
		switch to {
		case pipeline.StateGenerateArtifact:
			if from == pipeline.StateAnalyzeCoverage {
				fmt.Fprintf(w, "Target: %s\n", relOrAbs(loc, s.Target))
			} else {
				fmt.Fprintln(w, "Test failed, asking for a repair")
			}
		case pipeline.StateExecuteArtifact:
			fmt.Fprintf(w, "Attempt %d: running %s (lines %s)\n", s.Attempts, relOrAbs(loc, s.ArtifactPath), s.Range)
		case pipeline.StateDone:
			fmt.Fprintln(w, "Test passed")
		}
	}
}

func printCoverageSummary(w io.Writer, loc *repo.Locator, results []pipeline.Result) {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		status, artifact := "failed", "-"
		if r.Success {
			status, artifact = "passed", relOrAbs(loc, r.ArtifactPath)
		}
		target := "-"
		if r.Target != "" {
			target = relOrAbs(loc, r.Target)
		}
		lines := "-"
		if r.Range.Len() > 0 {
			lines = r.Range.String()
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1), target, lines, fmt.Sprintf("%d", r.Attempts), status, artifact,
		})
	}
	renderTable(w, "Coverage runs", []string{"Run", "Target", "Lines", "Attempts", "Result", "Test file"}, rows, 4)
}

func relOrAbs(loc *repo.Locator, path string) string {
	if rel, err := loc.Rel(path); err == nil {
		return rel
	}
	return path
}
