// Package statushub exposes bridge state over HTTP: Prometheus metrics, a
// JSON status document and a websocket feed of status snapshots.
package statushub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
	pongWait     = 30 * time.Second
	pingEvery    = 10 * time.Second
)

// RecentProvider returns recent emitted records, newest first.
type RecentProvider interface {
	Snapshot() []*domain.EventRecord
}

type SourceStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Mapper    string `json:"mapper"`
	Running   bool   `json:"running"`
}

// Snapshot is both the /status body and each websocket message.
type Snapshot struct {
	Connection string                `json:"connection"`
	LastError  string                `json:"last_error,omitempty"`
	Sources    []SourceStatus        `json:"sources"`
	Recent     []*domain.EventRecord `json:"recent"`
	Event      *domain.EventRecord   `json:"event,omitempty"`
	At         time.Time             `json:"at"`
}

type Hub struct {
	obs    ports.Observability
	recent RecentProvider

	mu      sync.Mutex
	state   domain.ConnectionState
	lastErr error
	sources map[string]SourceStatus
	order   []string
	clients map[*client]struct{}

	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener
	wg       sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func New(recent RecentProvider, obs ports.Observability) *Hub {
	return &Hub{
		obs:     obs,
		recent:  recent,
		sources: make(map[string]SourceStatus),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the hub binds to localhost by default and serves local UIs
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetConnection matches daemon.StateFunc.
func (h *Hub) SetConnection(state domain.ConnectionState, lastErr error) {
	h.mu.Lock()
	h.state = state
	h.lastErr = lastErr
	h.mu.Unlock()
	h.broadcast(nil)
}

func (h *Hub) SetSource(s SourceStatus) {
	h.mu.Lock()
	if _, ok := h.sources[s.Name]; !ok {
		h.order = append(h.order, s.Name)
	}
	h.sources[s.Name] = s
	h.mu.Unlock()
	h.broadcast(nil)
}

// Publish pushes a snapshot carrying rec to every websocket client.
func (h *Hub) Publish(rec *domain.EventRecord) {
	h.broadcast(rec)
}

func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	snap := Snapshot{
		Connection: h.state.String(),
		Sources:    make([]SourceStatus, 0, len(h.order)),
		At:         time.Now(),
	}
	if h.lastErr != nil {
		snap.LastError = h.lastErr.Error()
	}
	for _, name := range h.order {
		snap.Sources = append(snap.Sources, h.sources[name])
	}
	h.mu.Unlock()

	if h.recent != nil {
		snap.Recent = h.recent.Snapshot()
	}
	if snap.Recent == nil {
		snap.Recent = []*domain.EventRecord{}
	}
	return snap
}

func (h *Hub) broadcast(rec *domain.EventRecord) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	snap := h.Snapshot()
	snap.Event = rec
	payload, err := json.Marshal(snap)
	if err != nil {
		h.obs.LogError("status_encode_failed", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// slow reader
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", h.serveStatus)
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

func (h *Hub) serveStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Snapshot()); err != nil {
		h.obs.LogError("status_write_failed", err)
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.obs.LogError("status_ws_upgrade_failed", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer), done: make(chan struct{})}

	first, err := json.Marshal(h.Snapshot())
	if err == nil {
		c.send <- first
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
}

// readLoop processes control frames; clients never send data.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(1 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer h.drop(c)
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Start serves the hub on addr until Stop.
func (h *Hub) Start(addr string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.srv != nil {
		return errors.New("status hub already started")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listen %s: %w", addr, err)
	}
	h.ln = ln
	h.srv = &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	srv := h.srv
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.obs.LogError("status_serve_failed", err)
		}
	}()
	h.obs.LogInfo("status_listening", ports.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

func (h *Hub) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.srv = nil
	h.ln = nil
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	h.wg.Wait()
	return err
}
