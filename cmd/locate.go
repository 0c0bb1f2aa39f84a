package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mizarwork/mvd/internal/tools"
)

var locateCmd = &cobra.Command{
	Use:     "locate <tool>...",
	Short:   "Show where each tool is found under the executable root",
	GroupID: "setup",
	Long: `Looks in the executable root for each named tool using the same search
order the pipelines use, and prints the path that would be launched.

Missing tools are listed with every candidate that was tried.`,
	Example: `  mvd locate verifier
  mvd locate miz2prel makeenv verifier`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLocate,
}

func init() {
	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var missing int
	for _, name := range args {
		path, err := a.locator.Locate(a.paths.ExecutableRoot, name)
		var nf *tools.NotFoundError
		switch {
		case err == nil:
			kind := "native"
			if tools.KindOf(path) == tools.KindScript {
				kind = "script"
			}
			fmt.Fprintf(out, "%s: %s (%s)\n", name, path, kind)
		case errors.As(err, &nf):
			missing++
			fmt.Fprintf(out, "%s: not found\n", name)
			for _, c := range nf.Candidates {
				fmt.Fprintf(out, "    tried %s\n", c)
			}
		default:
			return err
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d tool(s) not found under %s", missing, a.paths.ExecutableRoot)
	}
	return nil
}
