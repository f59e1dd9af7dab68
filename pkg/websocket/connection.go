package websocket

import (
	"net/http"
	"time"

	"Raksha/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		// viewers open the watch page from any origin; rooms are token gated
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: cfg.EnableCompression,
	}
}

// HandleWebSocket upgrades the request and joins the caller to an alert room.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, alertID string, role Role, actor string) {
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("relay upgrade failed: %v", err)
		return
	}
	if hub.config.EnableCompression {
		conn.EnableWriteCompression(true)
	}

	connection := NewConnection(hub, uuid.NewString(), alertID, role, actor, conn)
	hub.register <- connection

	go connection.writePump()
	go connection.readPump()
}

func (c *Connection) readLimit() int64 {
	if c.Role == RolePublisher {
		return int64(c.Hub.config.MaxFrameSize)
	}
	return int64(c.Hub.config.MaxMessageSize)
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
}

func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.close()
	}()

	c.Conn.SetReadLimit(c.readLimit())
	c.touch()
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		kind, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.Errorf("relay read error on %s: %v", c.ID, err)
			}
			return
		}
		c.touch()

		if kind == websocket.BinaryMessage {
			c.Hub.relayBinary(c, message)
			continue
		}
		c.handleMessage(message)
	}
}

func (c *Connection) handleMessage(message []byte) {
	sig, err := Decode(message)
	switch {
	case errors.Is(err, ErrUnknownKind):
		logrus.Debugf("ignoring unknown signal kind %q from %s", sig.Kind, c.ID)
		return
	case err != nil:
		logrus.Warnf("invalid signal from %s: %v", c.ID, err)
		return
	}
	c.Hub.relaySignal(c, sig)
}

func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case f, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			mt := websocket.TextMessage
			if f.binary {
				mt = websocket.BinaryMessage
			}
			if err := c.Conn.WriteMessage(mt, f.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendSignal queues sig for this connection without blocking.
func (c *Connection) SendSignal(sig Signal) error {
	data, err := Encode(sig)
	if err != nil {
		return err
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.IsAlive() {
		return errors.New(errors.KindUnavailable, "connection closed")
	}
	select {
	case c.Send <- frame{data: data}:
		return nil
	default:
		return errors.New(errors.KindBusy, "send queue full")
	}
}
