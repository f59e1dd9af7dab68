package livestream

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"Raksha/internal/ports"
	"Raksha/pkg/errors"
	"Raksha/pkg/logger"
	"Raksha/pkg/websocket"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait   = 10 * time.Second
	idleTimeout = 90 * time.Second
)

// Dialer opens the realtime channel for an alert.
type Dialer interface {
	Dial(ctx context.Context, alertID string) (ports.Channel, error)
}

// RelayDialer joins the relay hub as the publisher of an alert room.
type RelayDialer struct {
	// BaseURL is the relay root, e.g. ws://127.0.0.1:8080.
	BaseURL string
	Tokens  *LinkSigner
	Dialer  *gws.Dialer
	Log     *zap.Logger
}

func (d *RelayDialer) Dial(ctx context.Context, alertID string) (ports.Channel, error) {
	token, err := d.Tokens.Token(alertID, websocket.RolePublisher)
	if err != nil {
		return nil, errors.Wrap(err, "sign publisher token")
	}
	u, err := url.Parse(strings.TrimRight(d.BaseURL, "/") + "/ws/stream/" + url.PathEscape(alertID))
	if err != nil {
		return nil, errors.Mark(err, errors.KindInvalid, "bad relay url")
	}
	q := u.Query()
	q.Set("role", string(websocket.RolePublisher))
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := d.Dialer
	if dialer == nil {
		dialer = gws.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		kind := errors.KindUnavailable
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			kind = errors.KindPermissionDenied
		}
		return nil, errors.Mark(err, kind, "dial relay")
	}
	lg := d.Log
	if lg == nil {
		lg = logger.Named("livestream")
	}
	return NewWSChannel(conn, lg), nil
}

// WSChannel adapts a gorilla connection to ports.Channel. Inbound text
// frames surface on Messages; inbound binary frames are dropped.
type WSChannel struct {
	conn    *gws.Conn
	in      chan []byte
	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
	readers sync.WaitGroup
	log     *zap.Logger
}

func NewWSChannel(conn *gws.Conn, lg *zap.Logger) *WSChannel {
	c := &WSChannel{
		conn: conn,
		in:   make(chan []byte, 32),
		done: make(chan struct{}),
		log:  lg,
	}
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		err := conn.WriteControl(gws.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == gws.ErrCloseSent {
			return nil
		}
		return err
	})
	c.readers.Add(1)
	go c.readLoop()
	return c
}

func (c *WSChannel) readLoop() {
	defer c.readers.Done()
	defer close(c.in)
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("relay connection lost", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if mt != gws.TextMessage {
			continue
		}
		select {
		case c.in <- data:
		case <-c.done:
			return
		}
	}
}

func (c *WSChannel) write(ctx context.Context, mt int, data []byte) error {
	select {
	case <-c.done:
		return errors.New(errors.KindUnavailable, "channel closed")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "relay write")
	default:
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(mt, data); err != nil {
		return errors.Mark(err, errors.KindTransient, "relay write")
	}
	return nil
}

func (c *WSChannel) Send(ctx context.Context, msg []byte) error {
	return c.write(ctx, gws.TextMessage, msg)
}

func (c *WSChannel) SendBinary(ctx context.Context, data []byte) error {
	return c.write(ctx, gws.BinaryMessage, data)
}

func (c *WSChannel) Messages() <-chan []byte { return c.in }

// Close sends a close frame, drops the connection and waits for the reader.
func (c *WSChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
		c.readers.Wait()
	})
	return err
}
