package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/metrics"
	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/rate"
	"github.com/plugmeter/plugmeter/pkg/session"
	"github.com/plugmeter/plugmeter/pkg/storage"
)

// Server handles the HTTP API. It reads plugs through the device map, prices
// readings with the rate store and exposes the active session.
type Server struct {
	plugs    *plug.Map
	storage  storage.Database
	rates    *rate.Store
	sessions *session.Manager
	metrics  *metrics.Metrics

	listenAddr string
	corsOrigin string
	serverName string
	httpServer *http.Server
	now        func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(p *plug.Map, s storage.Database, rates *rate.Store, sessions *session.Manager, m *metrics.Metrics) *Server {
	srv := New(p, s, rates, sessions, m)

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	corsOrigin := lflag.String("cors-origin", "*", "Value of Access-Control-Allow-Origin, empty disables CORS headers")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.corsOrigin = *corsOrigin
	})

	return srv
}

// New creates a Server without reading flags.
func New(p *plug.Map, s storage.Database, rates *rate.Store, sessions *session.Manager, m *metrics.Metrics) *Server {
	srv := &Server{
		plugs:      p,
		storage:    s,
		rates:      rates,
		sessions:   sessions,
		metrics:    m,
		listenAddr: ":8080",
		corsOrigin: "*",
		serverName: "plugmeter",
		now:        time.Now,
	}
	if revision := os.Getenv("K_REVISION"); revision != "" {
		srv.serverName = revision
	}
	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	s.handle(apiMux, "GET /api/devices", s.handleListDevices)
	s.handle(apiMux, "GET /api/plug", s.handleGetPlug)
	s.handle(apiMux, "POST /api/plug/toggle", s.handleToggle)
	s.handle(apiMux, "GET /api/readings", s.handleGetReadings)
	s.handle(apiMux, "POST /api/readings", s.handleStoreReadings)
	s.handle(apiMux, "GET /api/history", s.handleHistory)
	s.handle(apiMux, "GET /api/settings/rate", s.handleGetRate)
	s.handle(apiMux, "POST /api/settings/rate", s.handleUpdateRate)
	s.handle(apiMux, "GET /api/dashboard", s.handleDashboard)
	s.handle(apiMux, "POST /api/session/device", s.handleSwitchDevice)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.corsMiddleware(apiMux))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.WrapHandler(pattern, h))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// storageStatus maps a storage error onto a response code.
func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidDevice):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
