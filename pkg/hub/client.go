package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Conn is the part of a websocket connection a client uses.
// *websocket.Conn from gofiber/websocket satisfies it.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one websocket connection registered with a hub.
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message
}

// NewClient registers conn with hub. The initial messages, e.g. a state
// snapshot, are written before any broadcast queued after this call.
// Returns nil once the hub is stopped.
func NewClient(hub *Hub, conn Conn, initial ...Message) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, max(hub.buffer, len(initial))),
	}
	for _, msg := range initial {
		c.send <- msg
	}
	select {
	case <-hub.done:
		return nil
	default:
	}
	select {
	case hub.inbox <- op{client: c}:
		return c
	case <-hub.done:
		return nil
	}
}

// Run starts the writer and blocks in the reader until the connection
// closes. Call it from the websocket handler.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump discards inbound frames; it exists to notice disconnects and
// handle pongs.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.inbox <- op{client: c, leave: true}:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			frame := websocket.TextMessage
			if msg.Kind == Binary {
				frame = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(frame, msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
