package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

var clearSkipConfirm bool

var clearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Delete staged articles and tool outputs from the workspace",
	GroupID: "setup",
	Long: `Removes every file in the workspace TEXT directory.

Files still held open by a running tool are reported and left in place.

It will prompt for confirmation before proceeding unless the --yes flag is used.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearSkipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	return runClearWithReader(cmd, os.Stdin)
}

func runClearWithReader(cmd *cobra.Command, input io.Reader) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	entries, err := os.ReadDir(a.workspace.TextDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read workspace: %w", err)
	}
	var files int
	for _, e := range entries {
		if e.Type().IsRegular() {
			files++
		}
	}
	if files == 0 {
		fmt.Fprintln(out, "Nothing to clear.")
		return nil
	}

	fmt.Fprintf(out, "This will delete %d file(s) in %s\n", files, a.workspace.TextDir())
	if !clearSkipConfirm {
		if !confirm(input, "Continue?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	errs := a.workspace.ClearAll(commandContext(cmd))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Cleared %d file(s).\n", files-len(errs))
	if len(errs) > 0 {
		fmt.Fprintln(out, "Some files could not be deleted:")
		for _, e := range errs {
			fmt.Fprintf(out, "  - %v\n", e)
		}
		return fmt.Errorf("%d file(s) could not be deleted", len(errs))
	}
	return nil
}
