// Package server is the development server: it serves the build output,
// injects the live reload client and pushes updates over a websocket.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/a-h/templ"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/version"
)

// Config configures the development server.
type Config struct {
	Host string
	Port int
	// Roots are searched in order; the first directory containing the
	// requested file wins.
	Roots []string
	Open  bool
	Gzip  bool
}

// Server serves the build output with live reload.
type Server struct {
	cfg    Config
	hub    *Hub
	logger logging.Logger

	serverMutex sync.RWMutex
	httpServer  *http.Server
	addr        string
	done        chan struct{}
	stopOnce    sync.Once
}

// New creates a server that broadcasts through hub.
func New(cfg Config, hub *Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		cfg:    cfg,
		hub:    hub,
		logger: logger.WithComponent("server"),
		done:   make(chan struct{}),
	}
}

// Hub returns the live reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	files := http.Handler(http.HandlerFunc(s.handleFile))
	if s.cfg.Gzip {
		files = gziphandler.GzipHandler(files)
	}

	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, s.hub)
	mux.HandleFunc("/__assetforge/health", s.handleHealth)
	mux.HandleFunc("/__assetforge/errors", s.handleErrors)
	mux.Handle("/", files)
	return mux
}

// Start binds the listener and serves in the background until ctx is
// cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	go s.hub.Run(ctx)

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMutex.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr().String()
	s.serverMutex.Unlock()

	url := "http://" + s.Addr()
	s.logger.Info(ctx, "serving", "url", url, "roots", strings.Join(s.cfg.Roots, ","))

	go func() {
		defer s.stopOnce.Do(func() { close(s.done) })
		if err := httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, err, "server error")
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = s.Shutdown(shutdownCtx)
		case <-s.done:
		}
	}()

	if s.cfg.Open {
		go s.openBrowser(ctx, url)
	}
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Done is closed once the server has stopped serving.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.RLock()
	httpServer := s.httpServer
	s.serverMutex.RUnlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// resolve finds the file served for urlPath. Directories resolve to their
// index.html.
func (s *Server) resolve(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	for _, root := range s.cfg.Roots {
		candidate := filepath.Join(root, filepath.FromSlash(clean))
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.IsDir() {
			candidate = filepath.Join(candidate, "index.html")
			if info, err = os.Stat(candidate); err != nil || info.IsDir() {
				continue
			}
		}
		return candidate, true
	}
	return "", false
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, ok := s.resolve(r.URL.Path)
	if !ok {
		templ.Handler(NotFound(r.URL.Path, s.cfg.Roots), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
		return
	}

	ext := strings.ToLower(filepath.Ext(file))
	if ext != ".html" && ext != ".htm" {
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, file)
		return
	}

	content, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	page := InjectScript(content, ClientScript())

	w.Header().Set("Content-Type", mime.TypeByExtension(ext))
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = bytes.NewReader(page).WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"version": version.GetShortVersion(),
		"clients": s.hub.Clients(),
	})
}

type errorResponse struct {
	Kind    string   `json:"kind"`
	File    string   `json:"file"`
	Line    int      `json:"line,omitempty"`
	Column  int      `json:"column,omitempty"`
	Message string   `json:"message"`
	Frame   []string `json:"frame,omitempty"`
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pending := s.hub.Errors()
	out := make([]errorResponse, 0, len(pending))
	for _, e := range pending {
		out = append(out, errorResponse{
			Kind:    string(e.Kind),
			File:    e.File,
			Line:    e.Line,
			Column:  e.Column,
			Message: e.Message,
			Frame:   e.Frame,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// openURL launches the system browser. Tests replace it.
var openURL = func(url string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		s.logger.Warn(ctx, nil, "refusing to open non-http url", "url", url)
		return
	}
	if err := openURL(url); err != nil {
		s.logger.Warn(ctx, err, "failed to open browser")
	}
}
