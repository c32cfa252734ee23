package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/stammtisch-map-service/internal/board"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
)

// Reloader starts an out-of-schedule reload of the event feed.
type Reloader interface {
	Trigger()
}

// Deps are the collaborators behind the board routes.
type Deps struct {
	Store     *board.Store
	Sessions  *Sessions
	Reloader  Reloader
	Location  *time.Location
	LogoRules []domain.LogoRule
	// StaticDir is served at / when set.
	StaticDir string
	Metrics   *observability.Metrics
}

// Server exposes the board API, health, readiness and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
	// closing is closed on shutdown to end open event streams.
	closing chan struct{}
}

// NewServer creates an HTTP server with the board routes plus /healthz,
// /readyz and /metrics.
func NewServer(addr string, ready sharedobs.ReadinessChecker, deps Deps, logger *slog.Logger) *Server {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.LogoRules == nil {
		deps.LogoRules = domain.DefaultLogoRules
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           observability.AccessMiddleware(logger)(mux),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		deps:    deps,
		logger:  logger,
		closing: make(chan struct{}),
	}
	var once sync.Once
	s.httpServer.RegisterOnShutdown(func() {
		once.Do(func() { close(s.closing) })
	})

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /termine.json", s.handleTermine)
	mux.HandleFunc("GET /api/markers", s.handleMarkers)
	mux.HandleFunc("GET /api/cards", s.handleCards)
	mux.HandleFunc("GET /api/events/{index}", s.handleEvent)
	mux.HandleFunc("GET /api/events/{index}/event.ics", s.handleEventICS)
	mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	mux.HandleFunc("POST /api/reload", s.handleReload)

	mux.HandleFunc("POST /api/session", s.handleSessionCreate)
	mux.HandleFunc("GET /api/session", s.handleSessionView)
	mux.HandleFunc("DELETE /api/session", s.handleSessionDelete)
	mux.HandleFunc("POST /api/session/actions", s.handleSessionAction)
	mux.HandleFunc("GET /api/session/events", s.handleSessionEvents)

	if deps.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(deps.StaticDir)))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
