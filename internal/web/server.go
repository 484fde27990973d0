// Package web serves the workspace over HTTP: one multiplexed websocket for
// terminals plus a small JSON API, metrics and web push.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

var webLog = logging.ForComponent(logging.CompWeb)

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Token      string
	// ReadOnly rejects every message that changes tabs or sends input.
	ReadOnly bool
	// Push is optional.
	Push *PushService
}

// Server wraps an HTTP server around a workspace.
type Server struct {
	cfg        Config
	ws         *workspace.Workspace
	metrics    *Metrics
	push       *PushService
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
	unwatch    func()
}

// NewServer creates a server with routes and middleware. It starts
// observing ws for metrics and push immediately.
func NewServer(cfg Config, ws *workspace.Workspace) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8420"
	}

	s := &Server{
		cfg:     cfg,
		ws:      ws,
		metrics: NewMetrics(ws.Registry().Len),
		push:    cfg.Push,
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.unwatch = ws.Subscribe(func(ev workspace.Event) {
		s.metrics.Observe(ev)
		if s.push != nil {
			s.push.Observe(ev)
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/api/tabs", s.guard(http.MethodGet, s.handleTabs))
	mux.HandleFunc("/api/push/config", s.guard(http.MethodGet, s.handlePushConfig))
	mux.HandleFunc("/api/push/subscribe", s.guard(http.MethodPost, s.withPush(s.handlePushSubscribe)))
	mux.HandleFunc("/api/push/unsubscribe", s.guard(http.MethodPost, s.withPush(s.handlePushUnsubscribe)))
	mux.HandleFunc("/api/push/test", s.guard(http.MethodPost, s.withPush(s.handlePushTest)))
	mux.HandleFunc("/ws", s.guard(http.MethodGet, s.handleWS))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown. It returns nil on graceful shutdown.
func (s *Server) Start() error {
	if s.push != nil {
		go s.push.Run(s.baseCtx)
	}
	webLog.Info("web_listening", slog.String("addr", s.cfg.ListenAddr), slog.Bool("read_only", s.cfg.ReadOnly))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server. Open websockets are cut off when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	if s.unwatch != nil {
		s.unwatch()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sessions": s.ws.Registry().Len(),
		"readOnly": s.cfg.ReadOnly,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotMessage(s.ws.Snapshot()))
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, readOnly=%t)", s.cfg.ListenAddr, s.cfg.ReadOnly)
}
