package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chloestaris/iot-sensor/internal/gateway"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/logging"
)

// wsSendBufferSize is the per-connection outbound message buffer size.
const wsSendBufferSize = 64

// Default keepalive settings, used when the config leaves them zero.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultMaxMessage   = 64 * 1024

	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second
)

// upgrader configures the WebSocket upgrader. Sensor clients are
// programs, not browsers, so origin checking is not meaningful here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Hub tracks live WebSocket connections so they can be counted for
// system_stats and torn down together on shutdown.
type Hub struct {
	logger  *logging.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient is one WebSocket connection driving one gateway session.
type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *gateway.Session
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients. Only the connections are closed
// here; each readPump observes the read error and runs its normal
// teardown, so Unregister stays the sole closer of the send channel
// and session state is only ever touched from its own read loop.
func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.conn.Close()
	}
}

// handleWebSocket upgrades the connection and starts a gateway session.
// Authentication happens in-band: the first frame must carry the API key.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.dosGuard.allow(r.RemoteAddr) {
		s.logger.Warn("connection refused by DoS guard", "remote", r.RemoteAddr)
		writeTooManyRequests(w, "too many connection attempts")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
		session: gateway.NewSession(s.gwDeps),
	}

	s.hub.Register(client)

	go client.writePump(s.pingInterval())
	go client.readPump(s.maxMessageSize(), s.pingInterval(), s.pongTimeout())
}

func (s *Server) pingInterval() time.Duration {
	if s.wsCfg.PingInterval > 0 {
		return time.Duration(s.wsCfg.PingInterval) * time.Second
	}
	return defaultPingInterval
}

func (s *Server) pongTimeout() time.Duration {
	if s.wsCfg.PongTimeout > 0 {
		return time.Duration(s.wsCfg.PongTimeout) * time.Second
	}
	return defaultPongTimeout
}

func (s *Server) maxMessageSize() int64 {
	if s.wsCfg.MaxMessageSize > 0 {
		return int64(s.wsCfg.MaxMessageSize)
	}
	return defaultMaxMessage
}

// readPump reads frames and feeds them to the session one at a time.
// Each frame is handled to completion before the next read, which is
// what guarantees strict in-order request/response processing.
func (c *wsClient) readPump(maxMessageSize int64, pingInterval, pongWait time.Duration) {
	defer func() {
		c.session.Close()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		result := c.session.Handle(context.Background(), message)
		if result.Response != nil {
			c.trySend(result.Response)
		}
		if result.Close {
			// Returning triggers the deferred unregister; the write pump
			// drains the queued response, then sends the close frame.
			return
		}
	}
}

// writePump writes queued frames and protocol pings to the connection.
func (c *wsClient) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues a frame without blocking; a connection that cannot
// drain its buffer is dropped rather than allowed to stall the reader.
func (c *wsClient) trySend(message []byte) {
	select {
	case c.send <- message:
	default:
		c.hub.logger.Warn("websocket send buffer full, dropping connection",
			"session_id", c.session.ID())
		c.conn.Close()
	}
}
