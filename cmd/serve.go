package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mizarwork/mvd/internal/config"
	"github.com/mizarwork/mvd/internal/logger"
	"github.com/mizarwork/mvd/internal/server"
	"github.com/mizarwork/mvd/internal/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the compile API and event streams over HTTP",
	GroupID: "compile",
	Long: `Starts the HTTP service used by the browser front end.

Clients post article content to /api/{source,view}/compile and then read
the tool output from /api/{workflow}/events as Server-Sent Events. The
legacy ?call= endpoint is served at /lib/exe/ajax.php.

When session.state_file is configured, staged jobs survive restarts and
only one server may use the file at a time.`,
	Example: `  mvd serve
  mvd serve --addr :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(c *config.Config) {
		if serveAddr != "" {
			c.Server.Addr = serveAddr
		}
	})
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogFile); err != nil {
		return err
	}
	defer logger.Close()

	if cfg.Session.StateFile != "" {
		lock, err := session.AcquireLock(cfg.Session.StateFile)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("serve")
	log.Info("resolved tool paths",
		"executable_root", a.paths.ExecutableRoot,
		"catalog_root", a.paths.CatalogRoot,
		"workspace_root", a.paths.WorkspaceRoot,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", cfg.Server.Addr)

	srv := server.New(cfg.Server.Addr, a.engine, a.workspace, a.sessions, logger.WithComponent("server"))
	return srv.ListenAndServe(ctx)
}
