package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mizarwork/mvd/internal/config"
	"github.com/mizarwork/mvd/internal/logger"
	"github.com/mizarwork/mvd/internal/paths"
	"github.com/mizarwork/mvd/internal/pipeline"
	"github.com/mizarwork/mvd/internal/procrun"
	"github.com/mizarwork/mvd/internal/session"
	"github.com/mizarwork/mvd/internal/tools"
	"github.com/mizarwork/mvd/internal/workspace"
)

var (
	quietMode             bool
	configPath            string
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "mvd",
	Short: "Run the Mizar verifier toolchain and stream its diagnostics",
	Long: `mvd stages Mizar articles in a scratch workspace, runs the verifier
toolchain against them and reports decoded diagnostics.

It can serve the browser front end over HTTP (mvd serve) or check a
single article from the terminal (mvd run).

Configure with ~/.config/mvd/config.yaml or --config.`,
	Example: `  mvd serve                          # Serve the compile API on 127.0.0.1:8377
  mvd run article.miz                # Translate an article and print diagnostics
  mvd run --workflow view page.txt   # Full environment + verify pass
  mvd paths                          # Show resolved tool and workspace roots
  mvd clear --yes                    # Empty the workspace TEXT directory`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Reduce logging to info level only")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/mvd/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "compile", Title: "Compile Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func initConfig() {
	if quietMode {
		logger.SetDebug(false)
	} else {
		logger.SetDebug(true)
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("mvd %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("mvd %s\n", version)
}

// newRunner is swapped for a mock in tests.
var newRunner = func(encoding string, log *slog.Logger) (procrun.Runner, error) {
	return procrun.NewExecRunner(encoding, log)
}

// app bundles the components every subcommand builds from the config.
type app struct {
	cfg       *config.Config
	paths     paths.ToolPaths
	locator   *tools.Locator
	engine    *pipeline.Engine
	workspace *workspace.Manager
	sessions  *session.Store
}

// loadConfig reads the config file named by --config (or the default
// location), applies command-line overrides and rejects invalid settings
// before anything runs.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, apply := range overrides {
		apply(cfg)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "  %s\n", e)
		}
		return nil, fmt.Errorf("invalid configuration in %s (%d problem(s))", path, len(errs))
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	tp, err := paths.NewResolver().Resolve(cfg.Configured())
	if err != nil {
		return nil, err
	}

	runner, err := newRunner(cfg.OutputEncoding, logger.WithComponent("procrun"))
	if err != nil {
		return nil, fmt.Errorf("failed to create tool runner: %w", err)
	}

	sessions, err := session.Load(cfg.Session.StateFile, cfg.Session.TTL.Duration)
	if err != nil {
		return nil, err
	}

	locator := tools.NewLocator()
	ws := workspace.NewManager(tp.WorkspaceRoot, workspace.Options{
		DeleteRetries: cfg.Workspace.DeleteRetries,
		RetryInterval: cfg.Workspace.RetryInterval.Duration,
	}, logger.WithComponent("workspace"))

	return &app{
		cfg:       cfg,
		paths:     tp,
		locator:   locator,
		engine:    pipeline.NewEngine(tp, cfg.Definitions(), locator, runner, logger.WithComponent("pipeline")),
		workspace: ws,
		sessions:  sessions,
	}, nil
}

func loadApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}
