// Package ws is the WebSocket transport for live note notifications. Each
// accepted socket becomes one connection in the notify registry; events are
// framed as {"event": name, "payload": {...}}.
package ws

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"notekeeper/api/internal/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

var (
	errConnectionGone = errors.New("connection gone")
	errSendBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan frame
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Gateway upgrades HTTP requests to WebSocket connections, keeps them in the
// registry for the lifetime of the socket, and implements notify.Sender.
type Gateway struct {
	registry *notify.Registry

	mu      sync.Mutex
	clients map[string]*client
}

func NewGateway(registry *notify.Registry) *Gateway {
	return &Gateway{
		registry: registry,
		clients:  make(map[string]*client),
	}
}

// Handle upgrades the request and registers the socket under userID. It
// returns when the connection closes.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	connectionID := uuid.New().String()
	c := &client{
		conn: conn,
		send: make(chan frame, sendBufferSize),
		done: make(chan struct{}),
	}

	g.mu.Lock()
	g.clients[connectionID] = c
	g.mu.Unlock()
	g.registry.Register(userID, connectionID)

	// First frame on every socket, so clients can correlate disconnects.
	c.send <- frame{Event: "registered", Payload: map[string]string{"connectionId": connectionID}}

	go g.writePump(c, connectionID)
	g.readPump(c, connectionID)
}

// readPump discards inbound frames and detects disconnect. Registry cleanup
// happens here, exactly once per connection.
func (g *Gateway) readPump(c *client, connectionID string) {
	defer g.drop(connectionID, c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: connection %s read: %v", connectionID, err)
			}
			return
		}
	}
}

func (g *Gateway) writePump(c *client, connectionID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				log.Printf("ws: connection %s write: %v", connectionID, err)
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

func (g *Gateway) drop(connectionID string, c *client) {
	g.registry.Unregister(connectionID)
	g.mu.Lock()
	delete(g.clients, connectionID)
	g.mu.Unlock()
	c.stop()
	_ = c.conn.Close()
}

// Send hands an event to the connection's writer goroutine. It fails when the
// connection is already gone or its buffer is full; the caller treats both as
// a lost push.
func (g *Gateway) Send(connectionID string, event notify.Event) error {
	g.mu.Lock()
	c, ok := g.clients[connectionID]
	g.mu.Unlock()
	if !ok {
		return errConnectionGone
	}

	select {
	case <-c.done:
		return errConnectionGone
	case c.send <- frame{Event: event.Name(), Payload: event}:
		return nil
	default:
		return errSendBufferFull
	}
}
