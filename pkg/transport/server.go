package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
	"github.com/google/uuid"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (default "127.0.0.1:0").
	Address string

	// Kind is KindTCP (default) or KindWebSocket.
	Kind string

	// MaxMessageSize is the maximum body size (default: DefaultMaxMessageSize).
	MaxMessageSize int

	// Logger for operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger for frame capture (optional).
	ProtocolLogger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for each inbound frame, in arrival order per
	// connection.
	OnMessage func(conn *ServerConn, msg *wire.Message)

	// OnError is called when a connection fails with something other than
	// a clean close.
	OnError func(conn *ServerConn, err error)
}

// Server accepts client connections and exchanges frames with them. It acts
// as a scripted Core in tests and local tooling.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	listener net.Listener
	httpSrv  *http.Server

	// Active connections
	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = "127.0.0.1:0"
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	switch config.Kind {
	case "":
		config.Kind = KindTCP
	case KindTCP, KindWebSocket:
	default:
		return nil, fmt.Errorf("unknown transport kind %q", config.Kind)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: config,
		logger: logger.With("component", "transport-server"),
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	if s.config.Kind == KindWebSocket {
		s.httpSrv = s.newWebSocketServer()
		go s.serveWebSocket()
	} else {
		go s.acceptLoop()
	}

	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.CloseAll()
	s.wg.Wait()

	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// Port returns the listening TCP port, or 0.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// CloseAll drops every active connection without stopping the listener.
func (s *Server) CloseAll() {
	s.connsMu.RLock()
	conns := make([]*ServerConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connsMu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Broadcast sends msg to every active connection.
func (s *Server) Broadcast(msg *wire.Message) {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	for conn := range s.conns {
		_ = conn.Send(msg)
	}
}

// acceptLoop accepts incoming TCP connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(newStreamConn(nc, s.config.MaxMessageSize))
		}()
	}
}

// newWebSocketServer builds the HTTP server exposing the upgrade endpoint.
func (s *Server) newWebSocketServer() *http.Server {
	upgrader := newUpgrader()
	mux := http.NewServeMux()
	mux.HandleFunc(DefaultWebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		if !s.running.Load() {
			http.Error(w, "server stopping", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("upgrade failed: %w", err))
			}
			return
		}
		s.handleConnection(newWSConn(ws, s.config.MaxMessageSize))
	})
	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// serveWebSocket serves the upgrade endpoint on the listener.
func (s *Server) serveWebSocket() {
	defer s.wg.Done()

	if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("websocket server failed", "error", err)
	}
}

// handleConnection processes a single connection until it closes.
func (s *Server) handleConnection(conn Conn) {
	connID := uuid.New().String()
	if s.config.ProtocolLogger != nil {
		conn.SetLogger(s.config.ProtocolLogger, connID)
	}

	sconn := &ServerConn{
		conn:    conn,
		server:  s,
		closeCh: make(chan struct{}),
		connID:  connID,
	}

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	s.logger.Debug("client connected", "remote", conn.RemoteAddr(), "conn_id", connID)
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.logger.Debug("client disconnected", "remote", conn.RemoteAddr(), "conn_id", connID)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// ServerConn represents a client connection to the server.
type ServerConn struct {
	conn      Conn
	server    *Server
	closeCh   chan struct{}
	closeOnce sync.Once
	connID    string

	writeMu sync.Mutex
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Send sends a frame to the client.
func (c *ServerConn) Send(msg *wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrNotConnected
	default:
	}
	return c.conn.WriteMessage(msg)
}

// SendRaw writes bytes verbatim, bypassing framing. Only TCP connections
// support it; it exists to feed malformed or split input to clients.
func (c *ServerConn) SendRaw(data []byte) error {
	sc, ok := c.conn.(*streamConn)
	if !ok {
		return fmt.Errorf("raw writes need a tcp connection")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := sc.nc.Write(data)
	return err
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// readLoop reads frames from the connection.
func (c *ServerConn) readLoop() {
	for {
		msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if !errors.Is(err, io.EOF) && c.server.config.OnError != nil && c.server.running.Load() {
					c.server.config.OnError(c, err)
				}
				c.Close()
			}
			return
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, msg)
		}
	}
}
