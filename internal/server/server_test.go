package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetforge/internal/errors"
)

func write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

type fixture struct {
	root   string
	hub    *Hub
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T, gzip bool, options ...func(*HubConfig)) *fixture {
	t.Helper()
	root := t.TempDir()
	tmp := filepath.Join(root, ".tmp")
	public := filepath.Join(root, "public")
	write(t, filepath.Join(tmp, "main.css"), ".tmp{}")
	write(t, filepath.Join(public, "main.css"), ".public{}")
	write(t, filepath.Join(public, "index.html"), "<html><body><h1>home</h1></body></html>")
	write(t, filepath.Join(public, "js", "app.js"), strings.Repeat("console.log(1);\n", 200))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ts := httptest.NewUnstartedServer(nil)
	cfg := HubConfig{
		Host:           "localhost",
		Port:           3000,
		AllowedOrigins: []string{"http://" + ts.Listener.Addr().String()},
	}
	for _, option := range options {
		option(&cfg)
	}
	hub := NewHub(cfg, nil)
	go hub.Run(ctx)

	srv := New(Config{Roots: []string{tmp, public}, Gzip: gzip}, hub, nil)
	ts.Config.Handler = srv.Handler()
	ts.Start()
	t.Cleanup(ts.Close)

	return &fixture{root: root, hub: hub, server: srv, http: ts}
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServesIntermediateBeforePublic(t *testing.T) {
	f := newFixture(t, false)
	resp := get(t, f.http.URL+"/main.css", nil)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ".tmp{}", string(body))
}

func TestInjectsClientIntoHTML(t *testing.T) {
	f := newFixture(t, false)
	for _, p := range []string{"/", "/index.html"} {
		resp := get(t, f.http.URL+p, nil)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
		assert.True(t, strings.HasSuffix(string(body), "</script>\n</body></html>"), p)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	}
}

func TestNotFoundPage(t *testing.T) {
	f := newFixture(t, false)
	resp := get(t, f.http.URL+"/missing/<x>.css", nil)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "&lt;x&gt;.css")
	assert.NotContains(t, string(body), "<x>")
}

func TestTraversalStaysInRoots(t *testing.T) {
	f := newFixture(t, false)
	write(t, filepath.Join(f.root, "secret.txt"), "secret")
	_, ok := f.server.resolve("/../secret.txt")
	assert.False(t, ok)

	file, ok := f.server.resolve("/./css/../main.css")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(f.root, ".tmp", "main.css"), file)
}

func TestGzip(t *testing.T) {
	f := newFixture(t, true)
	resp := get(t, f.http.URL+"/js/app.js", http.Header{"Accept-Encoding": {"gzip"}})
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "console.log(1);"))
}

func TestHealthAndErrorsEndpoints(t *testing.T) {
	f := newFixture(t, false)
	f.hub.Report(context.Background(), errors.NewBuildError(errors.KindStyle, "main.scss", "bad").WithLocation(1, 2))

	resp := get(t, f.http.URL+"/__assetforge/health", nil)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])

	resp = get(t, f.http.URL+"/__assetforge/errors", nil)
	var errs []errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "styles", errs[0].Kind)
	assert.Equal(t, 2, errs[0].Column)
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	before := f.hub.Clients()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + WebSocketPath
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {f.http.URL}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	require.Eventually(t, func() bool { return f.hub.Clients() > before }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubBroadcasts(t *testing.T) {
	f := newFixture(t, false)
	conn := dial(t, f)
	ctx := context.Background()

	f.hub.Reload(ctx)
	assert.Equal(t, MessageReload, read(t, conn).Type)

	f.hub.InjectCSS(ctx, []string{"/css/main.css"})
	msg := read(t, conn)
	assert.Equal(t, MessageCSS, msg.Type)
	assert.Equal(t, []string{"/css/main.css"}, msg.Paths)

	f.hub.Report(ctx, errors.NewBuildError(errors.KindScript, "app.js", "Unexpected <token>"))
	msg = read(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Content, "Unexpected &lt;token&gt;")

	f.hub.ClearErrors(ctx, errors.KindStyle)
	f.hub.ClearErrors(ctx, errors.KindScript)
	assert.Equal(t, MessageClear, read(t, conn).Type)
}

func TestHubReplaysOverlayOnConnect(t *testing.T) {
	f := newFixture(t, false)
	f.hub.Report(context.Background(), errors.NewBuildError(errors.KindStyle, "main.scss", "Undefined variable"))

	conn := dial(t, f)
	msg := read(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Content, "Undefined variable")
}

func TestHubReloadDelay(t *testing.T) {
	f := newFixture(t, false, func(cfg *HubConfig) { cfg.ReloadDelay = 50 * time.Millisecond })
	conn := dial(t, f)

	start := time.Now()
	f.hub.Reload(context.Background())
	assert.Equal(t, MessageReload, read(t, conn).Type)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestHubRejectsForeignOrigins(t *testing.T) {
	f := newFixture(t, false)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + WebSocketPath

	_, resp, err := websocket.Dial(context.Background(), url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"http://evil.example"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(HubConfig{Host: "localhost", Port: 3000, AllowedOrigins: []string{"https://dev.example:8443"}}, nil)

	tests := []struct {
		origin   string
		expected bool
	}{
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://dev.example:8443", true},
		{"http://localhost:4000", false},
		{"http://evil.com", false},
		{"", false},
		{"not-a-url", false},
		{"javascript://localhost:3000", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, WebSocketPath, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expected, hub.checkOrigin(req))
		})
	}
}

func TestStartAndShutdown(t *testing.T) {
	var opened string
	old := openURL
	openURL = func(url string) error { opened = url; return nil }
	t.Cleanup(func() { openURL = old })

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(HubConfig{Host: "127.0.0.1"}, nil)
	srv := New(Config{Host: "127.0.0.1", Port: 0, Roots: []string{t.TempDir()}, Open: true}, hub, nil)
	require.NoError(t, srv.Start(ctx))

	resp := get(t, "http://"+srv.Addr()+"/__assetforge/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return opened != "" }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
