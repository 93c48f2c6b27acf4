package realtime

import (
	"encoding/json"
	"log"
	"time"

	"inkwell/api/internal/collab"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Client is one connected peer of a room.
type Client struct {
	id      string
	session collab.SessionContext
	room    *Room
	conn    *websocket.Conn
	send    chan []byte
}

func newClient(id string, session collab.SessionContext, room *Room, conn *websocket.Conn) *Client {
	return &Client{
		id:      id,
		session: session,
		room:    room,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
}

// enqueue hands a frame to the write pump. A peer that cannot drain its
// buffer is dropped rather than allowed to stall the whole room.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Printf("realtime: client %s send buffer full, dropping connection", c.id)
		c.room.leave(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.room.leave(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: client %s read: %v", c.id, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("realtime: client %s sent malformed frame: %v", c.id, err)
			continue
		}

		switch msg.Type {
		case MessageUpdate:
			c.room.applyUpdate(c, msg.Update)
		case MessageAwareness:
			c.room.updateCursor(c, msg.Cursor)
		default:
			// Clients never send sync frames; ignore unknown types so the
			// protocol can grow without breaking old servers.
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
