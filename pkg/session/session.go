package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/corelink/corelink-go/pkg/connection"
	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/persistence"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/requestid"
	"github.com/corelink/corelink-go/pkg/transport"
	"github.com/corelink/corelink-go/pkg/wire"
)

// Session is the connection orchestrator for one Core.
type Session struct {
	config      Config
	logger      *slog.Logger
	plog        log.Logger
	clock       clock.Clock
	transport   Transport
	discovery   discovery.Discoverer
	keystore    persistence.Keystore
	metrics     *Metrics
	reconnector *connection.Reconnector

	ops        *mailbox[func()]
	notes      *mailbox[func()]
	sends      *mailbox[func()]
	loopDone   chan struct{}
	notifyDone chan struct{}
	sendDone   chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once

	// sendEpoch mirrors epoch for the sender goroutine.
	sendEpoch atomic.Uint64

	snapMu       sync.RWMutex
	snapState    State
	snapServices registration.ServiceNames
	snapCoreID   string

	// Owned by the event loop.
	state       State
	epoch       uint64
	stopped     bool
	closed      bool
	hasTarget   bool
	targetHost  string
	targetPort  int
	discovering bool
	transportUp bool
	dialCancel  context.CancelFunc
	ids         *requestid.Generator
	pending     map[int64]*pendingRequest
	subs        *subscriptions
	queueZones  []string
	registerID  int64
	info        registration.Info
	services    registration.ServiceNames
	coreID      string
}

// New creates a Session in the Disconnected state and starts its event
// loop. Call Close to release it.
func New(config Config) *Session {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		config:      config,
		logger:      config.Logger.With("component", "session"),
		plog:        log.OrNoop(config.ProtocolLogger),
		clock:       config.Clock,
		transport:   config.Transport,
		discovery:   config.Discovery,
		keystore:    config.Keystore,
		metrics:     config.Metrics,
		reconnector: connection.NewReconnector(config.Clock, connection.NewBackoffWithConfig(config.Backoff)),
		ops:         newMailbox[func()](),
		notes:       newMailbox[func()](),
		sends:       newMailbox[func()](),
		loopDone:    make(chan struct{}),
		notifyDone:  make(chan struct{}),
		sendDone:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		state:       Disconnected(),
		snapState:   Disconnected(),
		ids:         requestid.New(),
		pending:     make(map[int64]*pendingRequest),
		subs:        newSubscriptions(),
		services:    config.Services,
	}
	s.snapServices = config.Services
	s.metrics.setState(s.state)

	go s.run()
	go s.runNotifier()
	go s.runSender()
	return s
}

// Connect starts discovery and connects to the first Core found. It returns
// once the attempt has started; progress is reported through OnStateChange.
func (s *Session) Connect() error {
	return s.do(func() error {
		if !s.state.canConnect() {
			return ErrAlreadyConnected
		}
		s.begin()
		s.startDiscovery()
		return nil
	})
}

// ConnectDirect connects to host:port without discovery.
func (s *Session) ConnectDirect(host string, port int) error {
	return s.do(func() error {
		if !s.state.canConnect() {
			return ErrAlreadyConnected
		}
		s.begin()
		s.dial(host, port)
		return nil
	})
}

// Disconnect closes the connection, fails every waiting request with
// ErrNotConnected and cancels any scheduled reconnection. The Session stays
// disconnected until Connect or ConnectDirect is called again.
func (s *Session) Disconnect() error {
	return s.do(func() error {
		s.disconnect()
		return nil
	})
}

// SubscribeQueue subscribes to the queue of a zone or output. Every call
// issues a new subscription that replaces the previous one for the zone.
func (s *Session) SubscribeQueue(zoneID string) error {
	return s.do(func() error {
		if !s.state.IsConnected() {
			return ErrNotConnected
		}
		s.rememberQueue(zoneID)
		s.subscribeQueue(zoneID)
		return nil
	})
}

// SendRequest sends a request and waits for its COMPLETE. It fails with
// ErrNotConnected when not connected or when the connection drops, with
// ErrTimeout after the request timeout, and with ctx.Err() when ctx ends
// first.
func (s *Session) SendRequest(ctx context.Context, name string, body wire.Body) (*wire.Message, error) {
	return s.roundTrip(ctx, requestOpts{name: name, body: body})
}

// State returns the current state.
func (s *Session) State() State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapState
}

// Services returns the service names negotiated with the Core, or the
// configured defaults before the first handshake.
func (s *Session) Services() registration.ServiceNames {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapServices
}

// CoreID returns the id of the Core last registered with, or "".
func (s *Session) CoreID() string {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapCoreID
}

// Close disconnects and stops the event loop. Later calls fail with
// ErrClosed. It must not be called from a callback.
func (s *Session) Close() error {
	_ = s.do(func() error {
		s.disconnect()
		s.closed = true
		return nil
	})
	s.closeOnce.Do(func() {
		s.ops.close()
		<-s.loopDone
		s.cancel()
		s.sends.close()
		<-s.sendDone
		s.notes.close()
		<-s.notifyDone
	})
	return nil
}

// run is the event loop.
func (s *Session) run() {
	defer close(s.loopDone)
	for range s.ops.signal {
		for _, op := range s.ops.take() {
			op()
		}
		if s.ops.isClosed() {
			for _, op := range s.ops.take() {
				op()
			}
			return
		}
	}
}

// runNotifier invokes upward callbacks in order.
func (s *Session) runNotifier() {
	defer close(s.notifyDone)
	for range s.notes.signal {
		for _, fn := range s.notes.take() {
			fn()
		}
		if s.notes.isClosed() {
			for _, fn := range s.notes.take() {
				fn()
			}
			return
		}
	}
}

// runSender writes frames queued by the event loop, in order.
func (s *Session) runSender() {
	defer close(s.sendDone)
	for range s.sends.signal {
		for _, fn := range s.sends.take() {
			fn()
		}
		if s.sends.isClosed() {
			for _, fn := range s.sends.take() {
				fn()
			}
			return
		}
	}
}

// sendAsync queues msg for the sender goroutine so the event loop never
// waits on a write. The frame is dropped with transport.ErrNotConnected if
// the attempt that queued it ended first. done, if set, runs on the sender
// goroutine with the outcome.
func (s *Session) sendAsync(msg *wire.Message, done func(error)) {
	epoch := s.epoch
	s.sends.put(func() {
		err := transport.ErrNotConnected
		if s.sendEpoch.Load() == epoch {
			err = s.transport.Send(msg)
		}
		if done != nil {
			done(err)
		}
	})
}

// advanceEpoch invalidates events and queued frames of the current attempt.
func (s *Session) advanceEpoch() {
	s.epoch++
	s.sendEpoch.Store(s.epoch)
}

// do runs fn on the event loop and returns its result.
func (s *Session) do(fn func() error) error {
	res := make(chan error, 1)
	if !s.ops.put(func() { res <- fn() }) {
		return ErrClosed
	}
	return <-res
}

// submit queues fn on the event loop without waiting.
func (s *Session) submit(fn func()) {
	s.ops.put(fn)
}

// notify queues an upward callback.
func (s *Session) notify(fn func()) {
	s.notes.put(fn)
}

// transition moves to next and reports it.
func (s *Session) transition(next State) {
	prev := s.state
	if prev == next {
		return
	}
	s.state = next

	s.snapMu.Lock()
	s.snapState = next
	s.snapMu.Unlock()

	s.metrics.setState(next)
	s.logger.Info("state changed", "from", prev.String(), "state", next.String())
	s.plog.Log(log.Event{
		Timestamp:  s.clock.Now(),
		Layer:      log.LayerService,
		Category:   log.CategoryState,
		RemoteAddr: s.remoteAddr(),
		CoreID:     s.coreID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   next.Reason,
		},
	})

	if cb := s.config.OnStateChange; cb != nil {
		s.notify(func() { cb(next) })
	}
}

func (s *Session) setServices(n registration.ServiceNames) {
	s.services = n
	s.snapMu.Lock()
	s.snapServices = n
	s.snapMu.Unlock()
}

func (s *Session) setCoreID(id string) {
	s.coreID = id
	s.snapMu.Lock()
	s.snapCoreID = id
	s.snapMu.Unlock()
}

func (s *Session) remoteAddr() string {
	if !s.hasTarget {
		return ""
	}
	return discovery.Core{Host: s.targetHost, Port: s.targetPort}.Address()
}

func (s *Session) connID() string {
	if t, ok := s.transport.(interface{ ConnID() string }); ok {
		return t.ConnID()
	}
	return ""
}

// logMessage captures a frame at the wire layer.
func (s *Session) logMessage(dir log.Direction, msg *wire.Message, rtt *time.Duration) {
	if _, noop := s.plog.(log.NoopLogger); noop {
		return
	}
	ev := log.NewMessageEvent(msg)
	ev.RoundTrip = rtt
	s.plog.Log(log.Event{
		Timestamp:    s.clock.Now(),
		ConnectionID: s.connID(),
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		RemoteAddr:   s.remoteAddr(),
		CoreID:       s.coreID,
		Message:      ev,
	})
}
