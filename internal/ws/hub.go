package ws

import (
	"sync"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/metrics"
	"github.com/fathima-sithara/libamarket/internal/presence"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalUserID is the fiber local holding the identity resolved at handshake.
const LocalUserID = "user_id"

type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// Hub owns every open connection and is the only writer to the presence registry.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	// held across an online-users snapshot and its fan-out
	broadcastMu sync.Mutex
	registry    *presence.Registry
	opts        Options
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewHub(registry *presence.Registry, opts Options, m *metrics.Metrics, log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		registry: registry,
		opts:     opts,
		metrics:  m,
		log:      log,
	}
}

// Handler upgrades the request; the identity must already be in c.Locals.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals(LocalUserID).(string)
		h.Serve(conn, uid)
	})
}

// Serve runs one connection to completion. An empty userID keeps the
// connection anonymous and out of the registry.
func (h *Hub) Serve(sock Socket, userID string) {
	c := h.attach(sock, userID)
	go c.writePump()
	c.readPump()
	h.detach(c)
}

func (h *Hub) attach(sock Socket, userID string) *Client {
	c := newClient(uuid.NewString(), userID, sock, h.opts)
	c.setState(StateConnecting)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.Connections.Inc()

	if userID != "" {
		c.setState(StateIdentified)
		h.registry.Register(userID, c)
	}
	c.setState(StateActive)
	h.log.Info("ws connected", zap.String("conn", c.id), zap.String("user", userID))

	if userID != "" {
		h.broadcastOnlineUsers()
	}
	return c
}

func (h *Hub) detach(c *Client) {
	c.setState(StateDisconnected)

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.metrics.Connections.Dec()
	c.closeSend()

	if _, removed := h.registry.Unregister(c); removed {
		h.broadcastOnlineUsers()
	}
	h.log.Info("ws disconnected", zap.String("conn", c.id), zap.String("user", c.userID))
}

func (h *Hub) broadcastOnlineUsers() {
	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()
	ids := h.registry.OnlineUsers()
	h.metrics.OnlineUsers.Set(float64(len(ids)))
	h.Broadcast(domain.OnlineUsersChangedEvent{UserIDs: ids})
}

// Broadcast queues ev on every active connection; slow clients miss it.
func (h *Hub) Broadcast(ev domain.Event) {
	b, err := Encode(ev)
	if err != nil {
		h.log.Error("encode broadcast", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.State() != StateActive {
			continue
		}
		if err := c.enqueue(b); err != nil {
			h.log.Debug("broadcast dropped", zap.String("conn", c.id), zap.Error(err))
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close ends every connection's write pump, which closes its socket.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeSend()
	}
}
