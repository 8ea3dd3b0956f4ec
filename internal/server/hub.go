package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Message types understood by the live reload client.
const (
	MessageReload = "reload"
	MessageCSS    = "css"
	MessageError  = "error"
	MessageClear  = "clear"
)

// UpdateMessage is sent to every connected browser.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Paths     []string  `json:"paths,omitempty"`
	Content   string    `json:"content,omitempty"`
	Notify    bool      `json:"notify,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HubConfig configures a Hub.
type HubConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	ReloadDelay    time.Duration
	Notify         bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub tracks live reload connections and broadcasts updates to them. It
// also implements notify.Reporter by showing an error overlay.
type Hub struct {
	cfg    HubConfig
	logger logging.Logger

	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *client
	unregister   chan *websocket.Conn
	done         chan struct{}
	started      chan struct{}
	startOnce    sync.Once

	errors *errors.Collector
}

// NewHub creates a Hub. Call Run before serving websocket requests.
func NewHub(cfg HubConfig, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger.WithComponent("livereload"),
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		started:    make(chan struct{}),
		errors:     errors.NewCollector(),
	}
}

// Run dispatches registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.startOnce.Do(func() { close(h.started) })
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clientsMutex.Lock()
			h.clients[c.conn] = c
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "client connected", "clients", count)

			// A page reloaded while errors are pending shows them again.
			if overlay, ok := h.overlayMessage(ctx); ok {
				c.send <- overlay
			}

		case conn := <-h.unregister:
			h.clientsMutex.Lock()
			if c, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(c.send)
			}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.clientsMutex.Lock()
			for conn, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; drop it rather than stall the hub.
					delete(h.clients, conn)
					close(c.send)
				}
			}
			h.clientsMutex.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	for conn, c := range h.clients {
		close(c.send)
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.clients = make(map[*websocket.Conn]*client)
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a live reload websocket.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedHosts(),
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go c.writePump()
	c.readPump(r.Context())
}

func (h *Hub) allowedHosts() []string {
	port := strconv.Itoa(h.cfg.Port)
	hosts := []string{
		net.JoinHostPort(h.cfg.Host, port),
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
	}
	for _, origin := range h.cfg.AllowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		} else {
			hosts = append(hosts, origin)
		}
	}
	return hosts
}

// checkOrigin only accepts http(s) origins served by this dev server or
// explicitly allowed in configuration.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}
	return slices.Contains(h.allowedHosts(), originURL.Host)
}

// readPump discards client messages and unregisters on disconnect. The
// client never sends anything, so liveness is left to writePump's pings.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c.conn:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				c.hub.logger.Debug(ctx, "websocket read ended", "error", err.Error())
			}
			return
		}
	}
}

// writePump forwards queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Send queues msg for every connected browser.
func (h *Hub) Send(ctx context.Context, msg UpdateMessage) {
	data, err := h.encode(msg)
	if err != nil {
		h.logger.Error(ctx, err, "encoding update message")
		return
	}

	select {
	case <-h.started:
	default:
		// Nothing can be connected before Run.
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	case <-ctx.Done():
	}
}

func (h *Hub) encode(msg UpdateMessage) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Notify = h.cfg.Notify
	return json.Marshal(msg)
}

// Reload asks every browser to reload the page after the configured delay.
func (h *Hub) Reload(ctx context.Context) {
	if h.cfg.ReloadDelay <= 0 {
		h.Send(ctx, UpdateMessage{Type: MessageReload})
		return
	}
	h.logger.Debug(ctx, "delaying reload", "delay", h.cfg.ReloadDelay.String())
	time.AfterFunc(h.cfg.ReloadDelay, func() {
		h.Send(context.WithoutCancel(ctx), UpdateMessage{Type: MessageReload})
	})
}

// InjectCSS swaps the given stylesheets in place without a reload.
func (h *Hub) InjectCSS(ctx context.Context, paths []string) {
	h.Send(ctx, UpdateMessage{Type: MessageCSS, Paths: paths})
}

// Report shows err in the browser error overlay.
func (h *Hub) Report(ctx context.Context, err error) {
	var buildErr *errors.BuildError
	if !stderrors.As(err, &buildErr) {
		buildErr = errors.NewBuildError("", "", err.Error())
	}
	h.errors.Add(buildErr)

	if overlay, ok := h.overlayMessage(ctx); ok {
		h.sendRaw(ctx, overlay)
	}
}

// ClearErrors removes the errors of kind except those for the files in
// keep, and hides the overlay when nothing is left.
func (h *Hub) ClearErrors(ctx context.Context, kind errors.Kind, keep ...string) {
	if !h.errors.Retain(kind, keep...) {
		return
	}
	if overlay, ok := h.overlayMessage(ctx); ok {
		h.sendRaw(ctx, overlay)
		return
	}
	h.Send(ctx, UpdateMessage{Type: MessageClear})
}

func (h *Hub) overlayMessage(ctx context.Context) ([]byte, bool) {
	pending := h.errors.All()
	if len(pending) == 0 {
		return nil, false
	}
	var buf bytes.Buffer
	if err := ErrorOverlay(pending).Render(ctx, &buf); err != nil {
		h.logger.Error(ctx, err, "rendering error overlay")
		return nil, false
	}
	data, err := h.encode(UpdateMessage{Type: MessageError, Content: buf.String()})
	if err != nil {
		h.logger.Error(ctx, err, "encoding error overlay")
		return nil, false
	}
	return data, true
}

func (h *Hub) sendRaw(ctx context.Context, data []byte) {
	select {
	case <-h.started:
	default:
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	case <-ctx.Done():
	}
}

// Errors returns the errors currently shown in the overlay.
func (h *Hub) Errors() []*errors.BuildError {
	return h.errors.All()
}

// String is used in logs.
func (h *Hub) String() string {
	return fmt.Sprintf("livereload(%d clients)", h.Clients())
}
