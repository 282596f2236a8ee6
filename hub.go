package pdfagent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ieee-pdf-agent/internal/logger"
)

// WebSocket timing and buffer limits.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendBuf  = 16
	broadcastBuf   = 64
	maxInboundSize = 512
)

// wsEnvelope is the wire shape of every hub message.
type wsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub fans status events out to connected WebSocket clients. Delivery is
// best-effort: a slow client's backlog is dropped, a late-joining client
// does not see past events. Status is a live stream, not a durable log.
type Hub struct {
	log      logger.AppLogger
	upgrader websocket.Upgrader

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	clients    map[*wsClient]bool

	// done is closed when Run returns; register and unregister sends
	// select on it so client goroutines cannot block past shutdown.
	done chan struct{}
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(log logger.AppLogger) *Hub {
	return &Hub{
		log: log.With("service", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The upload/convert API is already open cross-origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, broadcastBuf),
		clients:    make(map[*wsClient]bool),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled. Single goroutine, so
// no locking around the map.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			close(h.done)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Info("client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("client disconnected", "clients", len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer: drop it rather than stall the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish implements Notifier. Marshalling failures and a saturated
// broadcast queue are both swallowed; events carry no guarantee.
func (h *Hub) Publish(ev StatusEvent) {
	msg, err := json.Marshal(wsEnvelope{Event: "conversion_status", Data: ev})
	if err != nil {
		h.log.Error("unable to encode status event", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast queue full, dropping event",
			"session_id", ev.SessionID, "filename", ev.Filename)
	}
}

// ServeWS upgrades the connection and starts the client pumps. The
// greeting mirrors the connected lifecycle signal clients key on.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, clientSendBuf)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	greeting, _ := json.Marshal(wsEnvelope{
		Event: "connected",
		Data:  map[string]string{"message": "Connected to PDF Agent"},
	})
	select {
	case c.send <- greeting:
	default:
	}

	go c.writePump()
	go c.readPump()
}

// wsClient is one connected observer.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump exists only to notice the peer going away; inbound payloads
// are discarded.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundSize)
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

// writePump drains the send channel and keeps the connection alive with
// pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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
