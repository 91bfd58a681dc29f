package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/geostrike/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Connection lifecycle states. Only Open accepts inbound routing; messages
// seen after Closing are dropped, not queued. Closed is terminal.
const (
	StateConnecting int32 = iota
	StateOpen
	StateClosing
	StateClosed
)

// Router receives decoded traffic from connections. Implemented by the game
// dispatcher; kept as an interface here so the transport layer stays free of
// game semantics.
type Router interface {
	// Route handles one inbound frame. Called from the connection's read
	// loop, so frames from a single connection arrive in order.
	Route(conn *Conn, raw []byte)

	// Disconnected is invoked exactly once when the connection goes away,
	// with the player identity bound to it (empty if none was ever bound).
	Disconnected(playerID string, conn *Conn)
}

// Conn wraps a websocket connection with buffered writes and a lifecycle
// state machine.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	state  atomic.Int32
	router Router
	logger *slog.Logger

	mu       sync.Mutex
	playerID string

	closeOnce   sync.Once
	cleanupOnce sync.Once
}

// NewConn wraps an upgraded websocket connection. The connection starts in
// the Open state; pumps must be started by the caller.
func NewConn(ws *websocket.Conn, router Router, logger *slog.Logger) *Conn {
	c := &Conn{
		id:     uuid.New().String(),
		ws:     ws,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		router: router,
		logger: logger,
	}
	c.state.Store(StateOpen)
	return c
}

// ID returns the transport-level connection ID.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() int32 {
	return c.state.Load()
}

// BindPlayer records the player identity observed on this connection.
func (c *Conn) BindPlayer(playerID string) {
	c.mu.Lock()
	c.playerID = playerID
	c.mu.Unlock()
}

// PlayerID returns the bound player identity, empty if none yet.
func (c *Conn) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// readPump pumps messages from the websocket to the router.
func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.cleanup()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "conn_id", c.id, "error", err)
			}
			break
		}

		if c.state.Load() != StateOpen {
			// Connection is shutting down; drop instead of queueing.
			continue
		}

		// Literal ping control frame bypasses JSON decoding entirely.
		if isPingFrame(message) {
			c.SendRaw([]byte(`"pong"`))
			continue
		}

		c.router.Route(c, message)
	}
}

// isPingFrame matches the literal "ping" payload, quoted or bare.
func isPingFrame(message []byte) bool {
	return string(message) == "ping" || string(message) == `"ping"`
}

// writePump pumps messages from the send channel to the websocket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.state.Store(StateClosed)
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send marshals and queues an envelope for delivery. Silently a no-op when
// the connection is not open or its buffer is full.
func (c *Conn) Send(env domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("failed to marshal envelope", "type", env.Type, "error", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-encoded bytes for delivery.
func (c *Conn) SendRaw(data []byte) {
	if c.state.Load() != StateOpen {
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Warn("send buffer full, dropping message", "conn_id", c.id)
	}
}

// Close transitions the connection to Closing and wakes the write pump to
// finish the handshake. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(StateClosing)
		close(c.done)
	})
}

// cleanup notifies the router exactly once, even if close and an in-flight
// message race.
func (c *Conn) cleanup() {
	c.cleanupOnce.Do(func() {
		c.router.Disconnected(c.PlayerID(), c)
	})
}

// ServeWs upgrades an HTTP request and starts the connection pumps.
// Registration in the registry happens later, on the first join envelope.
func ServeWs(router Router, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConn(ws, router, logger)

	go conn.writePump()
	go conn.readPump()

	logger.Debug("new websocket connection", "conn_id", conn.id, "remote", r.RemoteAddr)
}
