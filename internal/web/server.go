// Package web exposes the download service over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lvcoi/ytmp4/internal/catalog"
	"github.com/lvcoi/ytmp4/internal/jobs"
	"github.com/lvcoi/ytmp4/internal/logging"
	"github.com/lvcoi/ytmp4/internal/media"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// JobSubmitter starts background downloads.
type JobSubmitter interface {
	Submit(ctx context.Context, req jobs.Request) (string, error)
}

// JobStore reads job states.
type JobStore interface {
	Get(id string) (jobs.State, bool)
	ActiveCount() int
}

// FileStore is the download directory.
type FileStore interface {
	List() ([]catalog.Entry, error)
	Delete(name string) error
	Resolve(name string) (string, error)
	Probe(name string) (*catalog.ProbeResult, error)
}

// Options tunes request handling.
type Options struct {
	DefaultQuality int
	AllowOrigin    string
}

// Deps are the collaborators a Server dispatches to. Hub may be nil, in which
// case /api/ws is not routed.
type Deps struct {
	Resolver media.Resolver
	Jobs     JobSubmitter
	States   JobStore
	Files    FileStore
	Hub      http.Handler
	Logger   *slog.Logger
}

// Server routes the HTTP API.
type Server struct {
	opts      Options
	deps      Deps
	logger    *slog.Logger
	startedAt time.Time
	now       func() time.Time
}

func New(opts Options, deps Deps) *Server {
	if opts.DefaultQuality <= 0 {
		opts.DefaultQuality = 1080
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:      opts,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/info", s.handleInfo)
	mux.HandleFunc("POST /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/progress/{id}", s.handleProgress)
	mux.HandleFunc("GET /api/files", s.handleListFiles)
	mux.HandleFunc("DELETE /api/files/{filename}", s.handleDeleteFile)
	mux.HandleFunc("GET /api/files/{filename}/probe", s.handleProbeFile)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET "+catalog.URLPrefix+"{filename}", s.handleServeFile)
	if s.deps.Hub != nil {
		mux.Handle("GET /api/ws", s.deps.Hub)
	}
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found")
	})

	var h http.Handler = mux
	h = withSecurityHeaders(h)
	h = withCORS(s.opts.AllowOrigin, h)
	h = logging.RequestLogger(s.logger)(h)
	return h
}

// ListenAndServe serves until ctx is canceled, then drains in-flight
// requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type messageResponse struct {
	Message string `json:"message"`
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// withCORS answers preflight requests and tags every response with the
// configured origin. An empty origin disables CORS entirely.
func withCORS(allowOrigin string, next http.Handler) http.Handler {
	if allowOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		if allowOrigin != "*" {
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
