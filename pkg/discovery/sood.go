package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/ipv4"
)

// SOOD defaults.
const (
	// DefaultServiceID is the service id Cores answer queries for.
	DefaultServiceID = "00720724-5143-4a9b-abac-0e50cba674bb"

	// DefaultMulticastAddr is the SOOD multicast group.
	DefaultMulticastAddr = "239.255.90.90:9003"

	// DefaultBroadcastAddr is the limited broadcast target.
	DefaultBroadcastAddr = "255.255.255.255:9003"

	// DefaultQueryInterval is the time between queries.
	DefaultQueryInterval = 10 * time.Second

	maxDatagramSize = 65507
)

// SOODConfig configures a SOODDiscovery.
type SOODConfig struct {
	// ServiceID is sent as query_service_id (default DefaultServiceID).
	ServiceID string

	// QueryAddrs are the query targets (default multicast and broadcast).
	QueryAddrs []string

	// Interval between queries (default DefaultQueryInterval). The first
	// query is sent immediately.
	Interval time.Duration

	// Interface restricts multicast queries to one interface (default: all
	// multicast-capable interfaces).
	Interface string

	// ListenAddr is the local UDP address queries are sent from and
	// responses arrive on (default ":0").
	ListenAddr string

	// Logger for operational logs (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultSOODConfig returns the default configuration.
func DefaultSOODConfig() SOODConfig {
	return SOODConfig{
		ServiceID:  DefaultServiceID,
		QueryAddrs: []string{DefaultMulticastAddr, DefaultBroadcastAddr},
		Interval:   DefaultQueryInterval,
		ListenAddr: ":0",
	}
}

// SOODDiscovery queries for Cores with SOOD.
type SOODDiscovery struct {
	config SOODConfig
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSOODDiscovery creates a SOOD discoverer. Zero config fields take their
// defaults.
func NewSOODDiscovery(config SOODConfig) *SOODDiscovery {
	def := DefaultSOODConfig()
	if config.ServiceID == "" {
		config.ServiceID = def.ServiceID
	}
	if len(config.QueryAddrs) == 0 {
		config.QueryAddrs = def.QueryAddrs
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.ListenAddr == "" {
		config.ListenAddr = def.ListenAddr
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SOODDiscovery{
		config: config,
		logger: logger.With("component", "sood"),
	}
}

// Start begins periodic queries.
func (d *SOODDiscovery) Start(onFound func(Core)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, onFound, d.done)
}

// Stop ends discovery and waits for the discovery goroutines to exit.
func (d *SOODDiscovery) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run owns the socket. A failed socket is reopened on the next tick.
func (d *SOODDiscovery) run(ctx context.Context, onFound func(Core), done chan struct{}) {
	defer close(done)

	seen := newDedupe()
	var seenMu sync.Mutex
	report := func(c Core) {
		seenMu.Lock()
		fresh := seen.first(c)
		seenMu.Unlock()
		if fresh {
			d.logger.Debug("core found", "host", c.Host, "port", c.Port, "name", c.Name)
			onFound(c)
		}
	}

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	var (
		pc       net.PacketConn
		readDone chan struct{}
	)
	closeConn := func() {
		if pc == nil {
			return
		}
		pc.Close()
		<-readDone
		pc, readDone = nil, nil
	}
	defer closeConn()

	for {
		if pc == nil {
			conn, err := net.ListenPacket("udp4", d.config.ListenAddr)
			if err != nil {
				d.logger.Debug("listen failed", "error", err)
			} else {
				pc, readDone = conn, make(chan struct{})
				go d.readLoop(ctx, pc, report, readDone)
			}
		}

		if pc != nil {
			if err := d.sendQuery(pc); err != nil {
				d.logger.Debug("query failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-readDone:
			// Reader died; reopen on the next tick.
			closeConn()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// sendQuery sends one query to every configured target.
func (d *SOODDiscovery) sendQuery(pc net.PacketConn) error {
	data, err := NewQuery(d.config.ServiceID, uuid.New().String()).MarshalBinary()
	if err != nil {
		return err
	}

	p := ipv4.NewPacketConn(pc)
	var errs []error
	sent := 0
	for _, target := range d.config.QueryAddrs {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", target, err))
			continue
		}

		if addr.IP.IsMulticast() {
			n, err := d.sendMulticast(p, data, addr)
			sent += n
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if _, err := pc.WriteTo(data, addr); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", addr, err))
			continue
		}
		sent++
	}

	if sent == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// sendMulticast sends data to group on every selected interface, or through
// the default route when no interface can be used.
func (d *SOODDiscovery) sendMulticast(p *ipv4.PacketConn, data []byte, group *net.UDPAddr) (int, error) {
	_ = p.SetMulticastTTL(1)
	_ = p.SetMulticastLoopback(true)

	sent := 0
	for _, ifi := range d.multicastInterfaces() {
		if err := p.SetMulticastInterface(&ifi); err != nil {
			continue
		}
		if _, err := p.WriteTo(data, nil, group); err == nil {
			sent++
		}
	}
	if sent > 0 {
		return sent, nil
	}

	if _, err := p.WriteTo(data, nil, group); err != nil {
		return 0, fmt.Errorf("send to %s: %w", group, err)
	}
	return 1, nil
}

func (d *SOODDiscovery) multicastInterfaces() []net.Interface {
	if d.config.Interface != "" {
		ifi, err := net.InterfaceByName(d.config.Interface)
		if err != nil {
			return nil
		}
		return []net.Interface{*ifi}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	out := ifaces[:0]
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			out = append(out, ifi)
		}
	}
	return out
}

// readLoop decodes responses until the socket is closed.
func (d *SOODDiscovery) readLoop(ctx context.Context, pc net.PacketConn, report func(Core), done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				d.logger.Debug("read failed", "error", err)
			}
			return
		}

		var pkt Packet
		if err := pkt.UnmarshalBinary(buf[:n]); err != nil {
			continue
		}
		if pkt.Type != PacketResponse {
			continue
		}

		core, ok := coreFromResponse(&pkt, from, d.config.ServiceID)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		report(core)
	}
}

// coreFromResponse extracts a Core from a response packet. Responses for
// other services or without a usable port are rejected.
func coreFromResponse(pkt *Packet, from net.Addr, serviceID string) (Core, bool) {
	if sid, ok := pkt.Get(PropServiceID); ok && serviceID != "" && sid != serviceID {
		return Core{}, false
	}

	portStr, ok := pkt.Get(PropHTTPPort)
	if !ok {
		return Core{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Core{}, false
	}

	host, ok := pkt.Get(PropReplyAddr)
	if !ok || host == "" {
		udp, isUDP := from.(*net.UDPAddr)
		if !isUDP {
			return Core{}, false
		}
		host = udp.IP.String()
	}

	c := Core{
		Host:   host,
		Port:   port,
		Source: SourceSOOD,
	}
	c.UniqueID, _ = pkt.Get(PropUniqueID)
	c.Name, _ = pkt.Get(PropName)
	c.DisplayVersion, _ = pkt.Get(PropDisplayVersion)
	return c, true
}

var _ Discoverer = (*SOODDiscovery)(nil)
