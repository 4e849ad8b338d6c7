package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stickerbook/trade-engine/tradeserver/config"
)

// Client is one websocket connection. The server only pushes; anything the
// client sends is read and discarded so pongs and close frames are processed.
type Client struct {
	ID     uuid.UUID
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

func newClient(userID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, config.WSSendBuffer),
		hub:    hub,
	}
}

func (c *Client) start() {
	c.hub.add(c)

	greeting, _ := json.Marshal(hello{Kind: "connected", UserID: c.UserID, At: time.Now().UTC()})
	c.hub.queue(c, greeting)

	go c.readPump()
	go c.writePump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.WSMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("Realtime connection closed unexpectedly",
					slog.String("type", "sys"),
					slog.String("client_id", c.ID.String()),
					slog.Any("error", err),
				)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(config.WSPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Realtime write failed",
					slog.String("type", "sys"),
					slog.String("client_id", c.ID.String()),
					slog.Any("error", err),
				)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
