// Package server exposes compile workflows over HTTP: JSON requests stage
// a source unit for the caller's session, and a Server-Sent Events stream
// runs the pipeline on it.
package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sourcegraph/conc"

	"github.com/mizarwork/mvd/internal/pipeline"
	"github.com/mizarwork/mvd/internal/session"
	"github.com/mizarwork/mvd/internal/workspace"
)

const (
	maxBodyBytes    = 8 << 20
	shutdownTimeout = 10 * time.Second
	pruneInterval   = 10 * time.Minute
)

// Pipeline runs a workflow against a workspace file.
type Pipeline interface {
	Run(ctx context.Context, wf pipeline.Workflow, inputPath string) iter.Seq[pipeline.Event]
}

// Server is the HTTP front end.
type Server struct {
	pipeline  Pipeline
	workspace *workspace.Manager
	sessions  *session.Store
	router    chi.Router
	addr      string
	logger    *slog.Logger
}

// New creates a server. Handlers share the given session store.
func New(addr string, p Pipeline, ws *workspace.Manager, sessions *session.Store, logger *slog.Logger) *Server {
	s := &Server{
		pipeline:  p,
		workspace: ws,
		sessions:  sessions,
		addr:      addr,
		logger:    logger,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(s.sessionMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/source/compile", s.handle(compileCommand{workflow: pipeline.WorkflowSource}))
		r.Post("/view/compile", s.handle(compileCommand{workflow: pipeline.WorkflowView}))
		r.Get("/{workflow}/events", s.handleStreamRoute)
		r.Post("/workspace/clear", s.handle(clearCommand{}))
		r.Post("/combined", s.handle(combineCommand{}))
	})

	// Endpoint used by the wiki client: /lib/exe/ajax.php?call=<name>.
	r.HandleFunc("/lib/exe/ajax.php", s.handleLegacy)
	r.HandleFunc("/ajax", s.handleLegacy)

	return r
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. Request contexts derive from ctx, so cancelling it also
// cancels every open event stream and kills the tools they run. Idle
// sessions are pruned in the background.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: event streams last as long as the tools run.
		IdleTimeout: 2 * time.Minute,
		ErrorLog:    slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	var wg conc.WaitGroup
	wg.Go(func() { s.pruneLoop(ctx) })

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String())

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			srv.Close()
			err = fmt.Errorf("shutdown: %w", serr)
		}
	}
	cancel()
	wg.Wait()
	return err
}

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.Prune()
			if err != nil {
				s.logger.Warn("session prune failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("pruned idle sessions", "count", n)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, reply{Success: true, Message: "ok"})
}
