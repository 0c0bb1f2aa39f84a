package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/mizarwork/mvd/internal/config"
)

var (
	configureForce    bool
	configureExeDir   string
	configureShareDir string
	configureWorkDir  string
	configureAddr     string
)

var configureCmd = &cobra.Command{
	Use:     "configure",
	Short:   "Write a config file with the given roots and defaults",
	GroupID: "setup",
	Long: `Writes the config file named by --config (default
~/.config/mvd/config.yaml) from the defaults, any MVD_* environment
overrides and the flags below.

An existing file is only replaced with --force.`,
	Example: `  mvd configure --exe-dir /opt/mizar/bin --share-dir /opt/mizar/share
  mvd configure --work-dir /srv/mizarwork --force`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "Overwrite an existing config file")
	configureCmd.Flags().StringVar(&configureExeDir, "exe-dir", "", "Directory holding the verifier tools")
	configureCmd.Flags().StringVar(&configureShareDir, "share-dir", "", "Directory holding mizar.msg")
	configureCmd.Flags().StringVar(&configureWorkDir, "work-dir", "", "Scratch workspace directory")
	configureCmd.Flags().StringVar(&configureAddr, "addr", "", "HTTP listen address")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	_, err := os.Stat(path)
	switch {
	case err == nil && !configureForce:
		return fmt.Errorf("%s already exists (use --force to replace it)", path)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if configureExeDir != "" {
		cfg.Paths.ExeDir = configureExeDir
	}
	if configureShareDir != "" {
		cfg.Paths.ShareDir = configureShareDir
	}
	if configureWorkDir != "" {
		cfg.Paths.WorkDir = configureWorkDir
	}
	if configureAddr != "" {
		cfg.Server.Addr = configureAddr
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e)
		}
		return fmt.Errorf("refusing to write invalid configuration (%d problem(s))", len(errs))
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
