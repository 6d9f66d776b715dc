package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
)

// TCPDialer opens plain TCP connections carrying back-to-back frames.
type TCPDialer struct {
	// MaxMessageSize limits inbound bodies (default DefaultMaxMessageSize).
	MaxMessageSize int

	// KeepAlive is the TCP keep-alive period (0 = OS default).
	KeepAlive time.Duration
}

// Dial connects to host:port.
func (d *TCPDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	nd := &net.Dialer{KeepAlive: d.KeepAlive}
	nc, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return newStreamConn(nc, d.MaxMessageSize), nil
}

// streamConn frames messages over a net.Conn.
type streamConn struct {
	nc     net.Conn
	framer *Framer
}

func newStreamConn(nc net.Conn, maxSize int) *streamConn {
	return &streamConn{
		nc:     nc,
		framer: NewFramerWithMaxSize(nc, maxSize),
	}
}

func (c *streamConn) ReadMessage() (*wire.Message, error) { return c.framer.ReadMessage() }

func (c *streamConn) WriteMessage(m *wire.Message) error { return c.framer.WriteMessage(m) }

func (c *streamConn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

func (c *streamConn) SetWriteDeadline(t time.Time) error { return c.nc.SetWriteDeadline(t) }

func (c *streamConn) SetLogger(logger log.Logger, connID string) {
	c.framer.SetLogger(logger, connID)
}

func (c *streamConn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *streamConn) Close() error { return c.nc.Close() }
