package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
	"github.com/gorilla/websocket"
)

// DefaultWebSocketPath is the endpoint path Cores serve frames on.
const DefaultWebSocketPath = "/api"

// WebSocketDialer opens WebSocket connections carrying one frame per
// binary message.
type WebSocketDialer struct {
	// Path is the URL path (default DefaultWebSocketPath).
	Path string

	// MaxMessageSize limits inbound bodies (default DefaultMaxMessageSize).
	MaxMessageSize int

	// HandshakeTimeout bounds the HTTP upgrade (default 10s).
	HandshakeTimeout time.Duration
}

// URL returns the endpoint for host:port.
func (d *WebSocketDialer) URL(host string, port int) string {
	path := d.Path
	if path == "" {
		path = DefaultWebSocketPath
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: path}
	return u.String()
}

// Dial connects to ws://host:port/<path>.
func (d *WebSocketDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := &websocket.Dialer{HandshakeTimeout: timeout}

	ws, resp, err := dialer.DialContext(ctx, d.URL(host, port), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return newWSConn(ws, d.MaxMessageSize), nil
}

// wsConn carries one frame per WebSocket message.
type wsConn struct {
	ws          *websocket.Conn
	maxBodySize int
	closeOnce   sync.Once

	logger log.Logger
	connID string
}

func newWSConn(ws *websocket.Conn, maxSize int) *wsConn {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	// Header block plus body.
	ws.SetReadLimit(int64(maxSize) + int64(wire.MaxHeaderLines*wire.MaxHeaderLineSize))
	return &wsConn{ws: ws, maxBodySize: maxSize}
}

func (c *wsConn) ReadMessage() (*wire.Message, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, fmt.Errorf("%w: %v", wire.ErrMessageTooLarge, err)
			}
			return nil, err
		}
		if typ != websocket.BinaryMessage && typ != websocket.TextMessage {
			continue
		}

		msg, err := wire.DecodeFrame(data, c.maxBodySize)
		if err != nil {
			return nil, err
		}
		if c.logger != nil {
			c.logger.Log(frameEvent(c.connID, data, log.DirectionIn))
		}
		return msg, nil
	}
}

func (c *wsConn) WriteMessage(m *wire.Message) error {
	data, err := wire.EncodeFrame(m)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if c.logger != nil {
		c.logger.Log(frameEvent(c.connID, data, log.DirectionOut))
	}
	return nil
}

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.ws.SetReadDeadline(t) }

func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

func (c *wsConn) SetLogger(logger log.Logger, connID string) {
	c.logger = logger
	c.connID = connID
}

func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// Close sends a close frame (best effort) and closes the socket.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// newUpgrader returns the upgrader used by Server in WebSocket mode.
func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
}
