package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-sync/internal/domain"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
)

// Role is the part a connection plays in its room.
type Role string

const (
	RoleHost Role = "host"
	RolePeer Role = "peer"
)

// Client is one websocket connection admitted to a room.
type Client struct {
	ID     string
	Name   string
	Role   Role
	RoomID string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(h *Hub, conn *websocket.Conn, id, name, roomID string, role Role) *Client {
	return &Client{
		ID:     id,
		Name:   name,
		Role:   role,
		RoomID: roomID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		logger: h.logger.With().
			Str(pkglog.FieldClientID, id).
			Str(pkglog.FieldRoomID, roomID).
			Str(pkglog.FieldParticipant, name).
			Str(pkglog.FieldRole, string(role)).
			Logger(),
	}
}

// enqueue queues a frame without blocking. It reports false when the
// client's buffer is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close tears down the connection, which ends both pumps.
func (c *Client) close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// ReadPump pumps frames from the connection to the hub until the
// connection fails, then removes the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))

		env, err := domain.ParseEnvelope(message)
		if err != nil {
			c.hub.reportError(c, domain.ErrCodeBadRequest, "invalid message format")
			continue
		}
		c.hub.Dispatch(c, env)
	}
}

// WritePump pumps queued frames to the connection and keeps it alive with
// pings. It returns when the hub closes the send buffer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
