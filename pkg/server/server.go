// Package server wires a dispatch.Dispatcher to net/http: an
// http.Handler that translates each inbound *http.Request into the
// dispatch core's httpmsg.Request, runs it through ProcessAction, and
// owns the Server's listen/shutdown lifecycle.
//
// Grounded on _examples/getmockd-mockd/pkg/engine/server.go's
// Start/Stop idiom (http.Server + graceful Shutdown with a bounded
// context) and handler.go's request-translation shape.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/pkg/dispatch"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/logging"
)

// Config bundles the knobs Server's http.Server and Handler need.
type Config struct {
	Addr                      string
	ReadTimeout               time.Duration
	WriteTimeout              time.Duration
	ProxyThisRequest          bool
	LocalAddresses            dispatch.LocalAddressChecker
	MetricsHandler            http.Handler // served at /metrics when non-nil
	ShutdownTimeout           time.Duration
	EnableCORSForAPI          bool
	EnableCORSForAllResponses bool
}

// Server owns the HTTP listener in front of a Dispatcher.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger

	mu      sync.Mutex
	http    *http.Server
	running bool
}

// New builds a Server. A nil logger defaults to logging.Nop().
func New(d *dispatch.Dispatcher, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{cfg: cfg, dispatcher: d, log: log}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server: already running")
	}

	mux := http.NewServeMux()
	mux.Handle("/", &dispatchHandler{server: s})
	if s.cfg.MetricsHandler != nil {
		mux.Handle("/metrics", s.cfg.MetricsHandler)
	}

	s.http = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}

	s.log.Info("dispatchd listening", "addr", s.cfg.Addr)
	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

// Stop gracefully shuts the server down, waiting up to
// Config.ShutdownTimeout for in-flight requests to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	s.running = false
	return err
}

// dispatchHandler adapts http.Handler to dispatch.ProcessAction.
type dispatchHandler struct {
	server *Server
}

func (h *dispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	// net/http keeps the request authority in r.Host, not in r.Header
	// (the Host header is stripped into it during parsing); dispatch.go's
	// exploratory-proxy branch needs it back on the header to decide
	// whether a request names an external origin (spec.md §4.4).
	header.Set("Host", r.Host)

	req := httpmsg.Request{
		Method:      r.Method,
		URI:         r.URL,
		Header:      header,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		RemoteAddr:  r.RemoteAddr,
	}

	var remote *net.TCPAddr
	if addr, err := net.ResolveTCPAddr("tcp", r.RemoteAddr); err == nil {
		remote = addr
	}

	cfg := h.server.cfg
	writer := dispatch.NewHTTPResponseWriter(w, cfg.EnableCORSForAPI, cfg.EnableCORSForAllResponses)
	h.server.dispatcher.ProcessAction(r.Context(), dispatch.ProcessInput{
		Request:          req,
		ResponseWriter:   writer,
		RemoteSocket:     remote,
		LocalAddresses:   cfg.LocalAddresses,
		ProxyThisRequest: cfg.ProxyThisRequest,
		Synchronous:      true,
	})
}
