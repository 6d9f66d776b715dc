package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
	"github.com/google/uuid"
)

// ConnectionState is the state of a Client.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectAborted   = errors.New("connect aborted")
)

// Kinds of transport selectable by configuration.
const (
	KindTCP       = "tcp"
	KindWebSocket = "websocket"
)

// Config configures a Client.
type Config struct {
	// Dialer opens connections (default: TCPDialer).
	Dialer Dialer

	// ConnectTimeout bounds Connect when ctx has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// WriteTimeout is the timeout for a single frame write (0 = no timeout).
	WriteTimeout time.Duration

	// ReadTimeout drops the connection when no frame arrives for this
	// long (0 = no timeout).
	ReadTimeout time.Duration

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures frames and state changes (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Dialer:         &TCPDialer{},
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// DialerForKind returns the Dialer for a configured transport kind.
func DialerForKind(kind string, maxMessageSize int) (Dialer, error) {
	switch kind {
	case "", KindTCP:
		return &TCPDialer{MaxMessageSize: maxMessageSize}, nil
	case KindWebSocket:
		return &WebSocketDialer{MaxMessageSize: maxMessageSize}, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}

// Handler receives client events. Calls for one connection are made from a
// single goroutine at a time, in order: the Connected transition, then
// messages, then the Disconnected transition.
type Handler interface {
	// OnMessage is called for every inbound frame, in arrival order.
	OnMessage(msg *wire.Message)

	// OnStateChange is called when the connection state changes.
	OnStateChange(oldState, newState ConnectionState)
}

// link is one established connection. Its read loop is the only goroutine
// that reports the Disconnected transition, after the last message.
type link struct {
	conn   Conn
	id     string
	remote string
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	reason string
}

// close closes the underlying connection once and records why. It reports
// whether this call closed it.
func (l *link) close(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	l.reason = reason
	l.conn.Close()
	return true
}

func (l *link) closeReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// Client owns at most one connection to a Core at a time.
type Client struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	mu         sync.Mutex
	handler    Handler
	state      ConnectionState
	cur        *link
	dialCancel context.CancelFunc

	writeMu sync.Mutex
}

// NewClient creates a client (not yet connected).
func NewClient(config Config, handler Handler) *Client {
	if config.Dialer == nil {
		config.Dialer = &TCPDialer{}
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:  config,
		logger:  logger.With("component", "transport"),
		plog:    log.OrNoop(config.ProtocolLogger),
		handler: handler,
		state:   StateDisconnected,
	}
}

// SetHandler replaces the event handler. It must be called before Connect.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnID returns the id of the current connection, or "".
func (c *Client) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.id
}

// RemoteAddr returns the peer address of the current connection, or nil.
func (c *Client) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	return c.cur.conn.RemoteAddr()
}

// Connect opens a connection to host:port. It returns once the connection
// is established (after the Connected notification) or failed. A Disconnect
// during the dial aborts it with ErrConnectAborted.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}
	dialCtx, dialCancel := context.WithCancel(ctx)
	defer dialCancel()

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.dialCancel = dialCancel
	c.mu.Unlock()
	c.notifyStateChange(StateDisconnected, StateConnecting)

	conn, err := c.config.Dialer.Dial(dialCtx, host, port)

	c.mu.Lock()
	aborted := c.dialCancel == nil
	c.dialCancel = nil
	if err != nil || aborted {
		c.state = StateDisconnected
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.notifyStateChange(StateConnecting, StateDisconnected)
		if err == nil {
			err = ErrConnectAborted
		}
		c.logger.Debug("connect failed", "host", host, "port", port, "error", err)
		return err
	}

	l := &link{
		conn:   conn,
		id:     uuid.New().String(),
		remote: net.JoinHostPort(host, fmt.Sprint(port)),
		done:   make(chan struct{}),
	}
	conn.SetLogger(c.config.ProtocolLogger, l.id)
	c.cur = l
	c.state = StateConnected
	c.mu.Unlock()

	c.logState(l, "", "CONNECTED", "")
	c.logger.Info("connected", "remote", l.remote, "conn_id", l.id)
	c.notifyStateChange(StateConnecting, StateConnected)

	go c.readLoop(l)
	return nil
}

// Send writes one frame. Concurrent calls are serialized so frames never
// interleave. A write error closes the connection.
func (c *Client) Send(msg *wire.Message) error {
	c.mu.Lock()
	l := c.cur
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-l.done:
		return ErrNotConnected
	default:
	}

	if c.config.WriteTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer l.conn.SetWriteDeadline(time.Time{})
	}

	if err := l.conn.WriteMessage(msg); err != nil {
		if errors.Is(err, wire.ErrUnknownVerb) || errors.Is(err, wire.ErrEmptyName) ||
			errors.Is(err, wire.ErrInvalidName) || errors.Is(err, wire.ErrNegativeID) {
			return err
		}
		c.closeLink(l, fmt.Sprintf("write error: %v", err))
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Disconnect closes the connection (or aborts a dial in progress) and waits
// for the Disconnected notification. It is idempotent. It must not be called
// from Handler callbacks.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	l := c.cur
	c.mu.Unlock()

	if l != nil {
		c.closeLink(l, "local disconnect")
		<-l.done
	}
	return nil
}

// closeLink closes l. The read loop then observes the error and reports
// the transition.
func (c *Client) closeLink(l *link, reason string) {
	l.close(reason)
}

// finish clears l as the current connection and emits Disconnected.
func (c *Client) finish(l *link, reason string) {
	l.close(reason)
	reason = l.closeReason()

	c.mu.Lock()
	current := c.cur == l
	if current {
		c.cur = nil
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if current {
		c.logState(l, "CONNECTED", "DISCONNECTED", reason)
		c.logger.Info("disconnected", "remote", l.remote, "conn_id", l.id, "reason", reason)
		c.notifyStateChange(StateConnected, StateDisconnected)
	}
	close(l.done)
}

// readLoop delivers inbound frames until the connection fails.
func (c *Client) readLoop(l *link) {
	for {
		if c.config.ReadTimeout > 0 {
			l.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		msg, err := l.conn.ReadMessage()
		if err != nil {
			reason := "peer closed connection"
			if !errors.Is(err, io.EOF) {
				reason = fmt.Sprintf("read error: %v", err)
			}
			if l.close(reason) && !errors.Is(err, io.EOF) {
				c.plog.Log(log.Event{
					Timestamp:    time.Now(),
					ConnectionID: l.id,
					Direction:    log.DirectionIn,
					Layer:        log.LayerTransport,
					Category:     log.CategoryError,
					RemoteAddr:   l.remote,
					Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: "read"},
				})
			}
			c.finish(l, reason)
			return
		}

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h.OnMessage(msg)
		}
	}
}

func (c *Client) notifyStateChange(oldState, newState ConnectionState) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.OnStateChange(oldState, newState)
	}
}

func (c *Client) logState(l *link, oldState, newState, reason string) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   l.remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
