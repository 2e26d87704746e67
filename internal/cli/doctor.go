package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scaliseraoul/ambrogio/internal/repo"
	"github.com/scaliseraoul/ambrogio/internal/tools"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg := rt.cfg

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Provider: %s, docstring model: %s, test model: %s\n",
				cfg.LLM.Provider, cfg.DocstringModel(), cfg.TestModel())

			var rows [][]string
			failed := false
			check := func(name string, err error, detail string) {
				status := "ok"
				if err != nil {
					status, detail, failed = "fail", err.Error(), true
				}
				rows = append(rows, []string{name, status, detail})
			}

			_, keyErr := cfg.ResolveAPIKey("")
			keyDetail := "not required"
			if cfg.NeedsCredential() {
				keyDetail = "found"
			}
			check("credential", keyErr, keyDetail)

			loc, err := repo.Locate(path)
			root := ""
			if err == nil {
				root = loc.Root()
			}
			check("repository", err, root)
			if err == nil {
				rows = append(rows, []string{"git", "info", gitState(cmd.Context(), root)})
			}

			term := &tools.Terminal{WorkingDir: root, Allowed: []string{cfg.Coverage.Python}, Timeout: 30 * time.Second}
			for _, module := range []string{"pytest", "coverage"} {
				version, err := moduleVersion(cmd.Context(), term, cfg.Coverage.Python, module)
				check(module, err, version)
			}

			renderTable(out, "", []string{"Check", "Status", "Detail"}, rows, 1)
			if failed {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Path to the Python repository (default: discovered from the working directory)")
	return cmd
}

func moduleVersion(ctx context.Context, runner tools.Runner, python, module string) (string, error) {
	res, err := runner.Exec(ctx, python, "-m", module, "--version")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s -m %s exited %d: %s", python, module, res.ExitCode, firstLine(res.Combined()))
	}
	return firstLine(res.Combined()), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
