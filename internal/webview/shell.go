// Package webview serves the chat panel: a local HTML page that talks to
// this process over a websocket.
package webview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Options configures a Shell.
type Options struct {
	Title  string
	Logger *slog.Logger
}

// Shell owns the panel and its HTTP surface.
type Shell struct {
	title    string
	actions  Actions
	logger   *slog.Logger
	assets   http.Handler
	upgrader websocket.Upgrader

	mu    sync.Mutex
	panel *Panel
}

// NewShell creates a shell. The panel is created on first use.
func NewShell(actions Actions, opts Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	title := opts.Title
	if title == "" {
		title = "qcode"
	}
	return &Shell{
		title:   title,
		actions: actions,
		logger:  logger,
		assets:  http.FileServer(http.FS(staticAssets())),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     loopbackOrigin,
		},
	}
}

// isLoopback reports whether hostport names this machine by a loopback
// name. Other names are refused so a rebound DNS name cannot reach us.
func isLoopback(hostport string) bool {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = strings.Trim(hostport, "[]")
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// loopbackOrigin accepts websocket upgrades from pages this server served.
// Clients that send no Origin still need the panel token.
func loopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host != r.Host {
		return false
	}
	return isLoopback(u.Host)
}

// loopbackOnly rejects requests whose Host is not a loopback name.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.Host) {
			http.Error(w, "forbidden host", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Panel returns the live panel, creating a new one if there is none or
// the previous one was disposed.
func (s *Shell) Panel() *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panel == nil || s.panel.Disposed() {
		s.panel = newPanel(s.title, s.actions, s.logger)
		s.logger.Info("panel created", "panel", s.panel.ID())
	}
	return s.panel
}

// current returns the live panel without creating one.
func (s *Shell) current() *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panel == nil || s.panel.Disposed() {
		return nil
	}
	return s.panel
}

// Dispose disposes the current panel, if any. Safe to call repeatedly.
func (s *Shell) Dispose() {
	s.mu.Lock()
	p := s.panel
	s.mu.Unlock()
	if p != nil {
		p.Dispose()
	}
}

// Router returns the HTTP routes of the shell.
func (s *Shell) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loopbackOnly)
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/assets/{nonce}/{name}", s.handleAsset).Methods("GET")
	r.HandleFunc("/ws", s.handleSocket).Methods("GET")
	return r
}

func (s *Shell) handleIndex(w http.ResponseWriter, r *http.Request) {
	html, err := s.Panel().Render(r.Context())
	if err != nil {
		s.logger.Error("render failed", "err", err)
		http.Error(w, "Error rendering page: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, html)
}

func (s *Shell) handleAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p := s.current()
	if p == nil || vars["nonce"] != p.nonce {
		http.NotFound(w, r)
		return
	}
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/" + path.Base(vars["name"])
	s.assets.ServeHTTP(w, r2)
}

func (s *Shell) handleSocket(w http.ResponseWriter, r *http.Request) {
	p := s.current()
	if p == nil || r.URL.Query().Get("token") != p.nonce {
		http.Error(w, "invalid panel token", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	if err := p.attach(conn); err != nil {
		conn.Close()
		return
	}
	defer func() {
		p.detach(conn)
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !p.Disposed() {
				s.logger.Debug("websocket closed", "panel", p.ID(), "err", err)
			}
			return
		}
		if err := p.Post(msg); err != nil {
			p.send(conn, errorOut(msg.Type, err))
			return
		}
	}
}

// Serve serves the shell on ln until ctx is done, then disposes the panel.
func (s *Shell) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.Dispose()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		s.Dispose()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
