// Package dashboard serves Hearth's HTTP API: the workspace state, the
// emergency controls, risk and analytics reads, and a live event stream.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/metrics"
	"github.com/zulandar/hearth/internal/notify"
	"github.com/zulandar/hearth/internal/store"
)

// ActorHeader carries the acting member's id on every request.
const ActorHeader = "X-Hearth-User"

const defaultHeartbeat = 15 * time.Second

// Opts holds the collaborators behind the API.
type Opts struct {
	WorkspaceID string
	Machine     *commstate.Machine
	Queue       *commstate.Queue
	Analyzer    *analysis.Analyzer
	Store       *store.Store
	Hub         *notify.Hub
	Metrics     *metrics.Metrics // optional; /metrics is empty without it
	Heartbeat   time.Duration    // SSE keepalive interval
	Now         func() time.Time // defaults to time.Now
}

// Server is the API handler set for one workspace.
type Server struct {
	workspaceID string
	machine     *commstate.Machine
	queue       *commstate.Queue
	analyzer    *analysis.Analyzer
	store       *store.Store
	hub         *notify.Hub
	metrics     *metrics.Metrics
	heartbeat   time.Duration
	now         func() time.Time
}

// New validates opts and creates a Server.
func New(opts Opts) (*Server, error) {
	switch {
	case opts.WorkspaceID == "":
		return nil, fmt.Errorf("dashboard: workspace id is required")
	case opts.Machine == nil:
		return nil, fmt.Errorf("dashboard: machine is required")
	case opts.Queue == nil:
		return nil, fmt.Errorf("dashboard: queue is required")
	case opts.Analyzer == nil:
		return nil, fmt.Errorf("dashboard: analyzer is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("dashboard: store is required")
	case opts.Hub == nil:
		return nil, fmt.Errorf("dashboard: hub is required")
	}
	hb := opts.Heartbeat
	if hb <= 0 {
		hb = defaultHeartbeat
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		workspaceID: opts.WorkspaceID,
		machine:     opts.Machine,
		queue:       opts.Queue,
		analyzer:    opts.Analyzer,
		store:       opts.Store,
		hub:         opts.Hub,
		metrics:     opts.Metrics,
		heartbeat:   hb,
		now:         now,
	}, nil
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	return router
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Opts
	Port int
	Out  io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	srv, err := New(opts.Opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	gin.SetMode(gin.ReleaseMode)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: srv.Handler(),
		// Open streams end with ctx instead of holding up Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
