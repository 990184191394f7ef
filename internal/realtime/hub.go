// Package realtime pushes intelligence events to WebSocket subscribers, scoped by tenant.
package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 32
)

// Event is the JSON frame delivered to subscribers.
type Event struct {
	Stream string    `json:"stream"`
	Name   string    `json:"event"`
	Tenant string    `json:"tenant,omitempty"`
	Data   any       `json:"data,omitempty"`
	At     time.Time `json:"at"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans events out to subscribed connections. Events published for the global tenant
// reach every subscriber; tenant events reach only that tenant's connections.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*subscriber]struct{}
	upgrader      websocket.Upgrader
	log           *zap.Logger
	now           func() time.Time
}

// NewHub constructs an event hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
		log: logger.WithModule("realtime"),
		now: time.Now,
	}
}

// Serve upgrades the request and subscribes the connection to streams on behalf of tenant.
// It blocks until the connection closes.
func (h *Hub) Serve(tenant string, streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newSubscriber(h, conn, tenantKey(tenant))
	h.subscribe(client, streams)

	go client.writeLoop()
	client.readLoop()
}

// Publish delivers an event on stream. An empty tenant publishes globally.
func (h *Hub) Publish(stream, tenant, name string, data any) {
	if h == nil {
		return
	}
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}
	tenant = tenantKey(tenant)

	event := Event{Stream: stream, Name: name, Data: data, At: h.now().UTC()}
	if tenant != intel.GlobalTenant {
		event.Tenant = tenant
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscriptions[stream] {
		if tenant == intel.GlobalTenant || client.tenant == tenant {
			h.enqueue(client, event)
		}
	}
}

// Subscribers reports how many connections listen on stream.
func (h *Hub) Subscribers(stream string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeStream(stream)])
}

func (h *Hub) subscribe(client *subscriber, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if !Known(stream) {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream))
			continue
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}
		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[*subscriber]struct{})
		}
		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *subscriber, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeLocked(client, stream)
	}
}

func (h *Hub) unregister(client *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeLocked(client, stream)
	}
}

func (h *Hub) removeLocked(client *subscriber, stream string) {
	clients, ok := h.subscriptions[stream]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subscriptions, stream)
	}
	delete(client.streams, stream)
}

// enqueue never blocks the publisher; a subscriber that cannot keep up is disconnected.
func (h *Hub) enqueue(client *subscriber, event Event) {
	select {
	case client.send <- event:
	default:
		h.log.Warn("dropping slow subscriber", zap.String("tenant", client.tenant))
		go client.close()
	}
}

type subscriber struct {
	hub     *Hub
	socket  *websocket.Conn
	tenant  string
	streams map[string]struct{}
	send    chan Event
	done    chan struct{}
	once    sync.Once
}

func newSubscriber(hub *Hub, conn *websocket.Conn, tenant string) *subscriber {
	return &subscriber{
		hub:     hub,
		socket:  conn,
		tenant:  tenant,
		streams: make(map[string]struct{}),
		send:    make(chan Event, defaultBufferSize),
		done:    make(chan struct{}),
	}
}

func (c *subscriber) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("subscriber closed", zap.String("tenant", c.tenant), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control frame", zap.String("tenant", c.tenant), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			c.hub.enqueue(c, Event{Name: "pong", At: c.hub.now().UTC()})
		}
	}
}

func (c *subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case event := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(event); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *subscriber) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.socket.Close()
	})
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := hostWithoutPort(origin)
	return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func tenantKey(tenant string) string {
	if tenant = strings.TrimSpace(tenant); tenant == "" {
		return intel.GlobalTenant
	}
	return tenant
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	result := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		result = append(result, stream)
	}
	return result
}
