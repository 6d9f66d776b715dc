package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/corelink/corelink-go/pkg/connection"
	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/persistence"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/transport"
	"github.com/corelink/corelink-go/pkg/wire"
)

// Defaults.
const (
	// DefaultRequestTimeout bounds every request, handshake steps included.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultQueueItemCount is max_item_count for queue subscriptions.
	DefaultQueueItemCount = registration.DefaultQueueItemCount
)

// Transport is the message transport a Session drives. *transport.Client
// implements it.
type Transport interface {
	// SetHandler installs the event handler for the next connection.
	SetHandler(h transport.Handler)

	// Connect opens a connection and returns once it is established.
	Connect(ctx context.Context, host string, port int) error

	// Send writes one frame.
	Send(msg *wire.Message) error

	// Disconnect closes the connection or aborts a dial. It is idempotent.
	Disconnect() error
}

// Config configures a Session.
type Config struct {
	// Identity is sent when registering.
	Identity registration.Identity

	// Services are the names used until a Core announces its own
	// (default: registration.DefaultServiceNames()).
	Services registration.ServiceNames

	// Discovery finds Cores for Connect (default: SOOD discovery).
	Discovery discovery.Discoverer

	// Transport carries frames (default: a TCP transport.Client).
	Transport Transport

	// Keystore persists the registration token (default: in memory).
	Keystore persistence.Keystore

	// RequestTimeout bounds each request (default: DefaultRequestTimeout).
	RequestTimeout time.Duration

	// Backoff configures reconnection delays.
	Backoff connection.BackoffConfig

	// QueueItemCount is sent with queue subscriptions
	// (default: DefaultQueueItemCount).
	QueueItemCount int

	// Clock drives timeouts and reconnection timers (default: wall clock).
	Clock clock.Clock

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures messages and state changes (optional).
	ProtocolLogger log.Logger

	// Metrics records session metrics (optional).
	Metrics *Metrics

	// OnStateChange is called for every state transition.
	OnStateChange func(State)

	// OnZonesData is called with every zones subscription payload.
	OnZonesData func(data []byte)

	// OnQueueData is called with every queue subscription payload.
	OnQueueData func(zoneID string, data []byte)
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Identity.ExtensionID == "" {
		c.Identity = registration.DefaultIdentity()
	}
	def := registration.DefaultServiceNames()
	if c.Services.Registry == "" {
		c.Services.Registry = def.Registry
	}
	if c.Services.Transport == "" {
		c.Services.Transport = def.Transport
	}
	if c.Services.Browse == "" {
		c.Services.Browse = def.Browse
	}
	if c.Services.Image == "" {
		c.Services.Image = def.Image
	}
	if c.Discovery == nil {
		sc := discovery.DefaultSOODConfig()
		sc.Logger = c.Logger
		c.Discovery = discovery.NewSOODDiscovery(sc)
	}
	if c.Transport == nil {
		tc := transport.DefaultConfig()
		tc.Logger = c.Logger
		tc.ProtocolLogger = c.ProtocolLogger
		c.Transport = transport.NewClient(tc, nil)
	}
	if c.Keystore == nil {
		c.Keystore = persistence.NewMemoryStore()
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.QueueItemCount <= 0 {
		c.QueueItemCount = DefaultQueueItemCount
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}
