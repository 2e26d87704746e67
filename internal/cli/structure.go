package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scaliseraoul/ambrogio/internal/repo"
)

// NewStructureCmd prints every Python file with the names it defines and imports.
func NewStructureCmd(opts *Options) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "structure",
		Short: "Show the files, definitions and imports of a Python repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			loc, err := repo.Locate(path)
			if err != nil {
				return err
			}
			out, err := loc.Structure(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project: %s\n%s", loc.ProjectName(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Path to the Python repository (default: discovered from the working directory)")
	return cmd
}
