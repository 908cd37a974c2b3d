// Package server exposes the HTTP trigger for booking runs.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Trigger starts a run in the background
type Trigger interface {
	Trigger(ctx context.Context, dryRun bool) bool
}

// Server is the health and booking trigger endpoint
type Server struct {
	addr    string
	secret  string
	trigger Trigger
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a server. An empty secret disables authentication.
func New(addr, secret string, trigger Trigger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, secret: secret, trigger: trigger, logger: logger, now: time.Now}
}

// Handler returns the routed handler
func (s *Server) Handler(runCtx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	book := s.requireSecret(s.handleBook(runCtx))
	mux.HandleFunc("GET /book", book)
	mux.HandleFunc("POST /book", book)
	return s.logging(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Triggered runs use ctx too, so they stop with the server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// requireSecret accepts the secret as ?secret= or X-Webhook-Secret
func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next(w, r)
			return
		}
		provided := r.URL.Query().Get("secret")
		if provided == "" {
			provided = r.Header.Get("X-Webhook-Secret")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleBook(runCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

		if !s.trigger.Trigger(runCtx, dryRun) {
			s.logger.Info("booking trigger rejected, run in progress", "method", r.Method)
			writeJSON(w, http.StatusConflict, map[string]any{
				"status":  "busy",
				"message": "Booking process already running",
			})
			return
		}

		s.logger.Info("booking triggered via HTTP", "method", r.Method, "dry_run", dryRun)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "triggered",
			"message": "Booking process started",
			"dry_run": dryRun,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
