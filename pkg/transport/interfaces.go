package transport

import (
	"context"
	"net"
	"time"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
)

// Conn is one open connection carrying whole frames. Implementations allow
// one concurrent reader and one concurrent writer.
type Conn interface {
	// ReadMessage blocks for the next frame. io.EOF means the peer closed
	// the connection cleanly.
	ReadMessage() (*wire.Message, error)

	// WriteMessage writes one frame.
	WriteMessage(m *wire.Message) error

	// SetReadDeadline and SetWriteDeadline behave like net.Conn's.
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	// SetLogger enables frame capture for this connection.
	SetLogger(logger log.Logger, connID string)

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// Close closes the connection. Blocked reads return an error.
	Close() error
}

// Dialer opens connections to a Core.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}

// FrameReadWriter provides frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	ReadMessage() (*wire.Message, error)
	WriteMessage(m *wire.Message) error
}

// Compile-time interface satisfaction checks.
var (
	_ Conn            = (*streamConn)(nil)
	_ Conn            = (*wsConn)(nil)
	_ Dialer          = (*TCPDialer)(nil)
	_ Dialer          = (*WebSocketDialer)(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
