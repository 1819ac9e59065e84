package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/askdesk/askdesk/pkg/config"
	"github.com/askdesk/askdesk/pkg/models"
	"github.com/askdesk/askdesk/pkg/ratelimit"
	"github.com/askdesk/askdesk/pkg/resolver"
	"github.com/askdesk/askdesk/pkg/tracker"
)

// maxBodyBytes caps /query request bodies.
const maxBodyBytes = 64 * 1024

// Resolver answers a question. *resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, question string) resolver.Answer
}

// Server is the askdesk HTTP API.
type Server struct {
	cfg      *config.Config
	resolver Resolver
	limiter  *ratelimit.Limiter
	tracker  tracker.Tracker
	log      *zap.Logger
	mux      *http.ServeMux
	handler  http.Handler
}

// New creates a Server wired with its dependencies. limiter and t may be nil
// to disable rate limiting and query tracking.
func New(cfg *config.Config, res Resolver, limiter *ratelimit.Limiter, t tracker.Tracker, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		resolver: res,
		limiter:  limiter,
		tracker:  t,
		log:      log,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/query", s.handleQuery)
	s.mux.HandleFunc("/health", s.handleHealth)
	if cfg.Metrics.Enabled {
		s.mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	s.mux.HandleFunc("/", s.handleNotFound)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
	})
	s.handler = c.Handler(s.requestID(s.accessLog(s.recoverer(s.mux))))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("askdesk API listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Message: "API is running"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound, "Endpoint not found")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, models.ErrorResponse{Error: message})
}
