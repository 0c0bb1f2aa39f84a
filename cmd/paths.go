package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mizarwork/mvd/internal/diagnostics"
)

var pathsJSON bool

var pathsCmd = &cobra.Command{
	Use:     "paths",
	Short:   "Print the resolved tool, catalog and workspace roots",
	GroupID: "setup",
	RunE:    runPaths,
}

func init() {
	pathsCmd.Flags().BoolVar(&pathsJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(pathsCmd)
}

func runPaths(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if pathsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a.paths)
	}

	fmt.Fprintf(out, "Config:     %s\n", a.cfg.Path())
	fmt.Fprintf(out, "Executable: %s\n", a.paths.ExecutableRoot)
	fmt.Fprintf(out, "Catalog:    %s\n", diagnostics.CatalogPath(a.paths.CatalogRoot))
	fmt.Fprintf(out, "Workspace:  %s\n", a.paths.WorkspaceRoot)
	fmt.Fprintf(out, "Articles:   %s\n", a.workspace.TextDir())
	return nil
}
