package discovery

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// DNS-SD names used by Cores.
const (
	ServiceTypeCore = "_corelink._tcp"
	Domain          = "local."
)

// DefaultBrowseRetry is the pause before browsing again after the mDNS
// client failed.
const DefaultBrowseRetry = 5 * time.Second

// TXT record keys announced by Cores.
const (
	TXTUniqueID       = "unique_id"
	TXTName           = "name"
	TXTDisplayVersion = "display_version"
)

// MDNSConfig configures an MDNSDiscovery.
type MDNSConfig struct {
	// ServiceType to browse (default ServiceTypeCore).
	ServiceType string

	// Interface restricts browsing to one interface (default: all).
	Interface string

	// RetryInterval is the pause before browsing again after a failure
	// (default DefaultBrowseRetry).
	RetryInterval time.Duration

	// Logger for operational logs (default: slog.Default()).
	Logger *slog.Logger
}

type browseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// MDNSDiscovery browses DNS-SD for Cores.
type MDNSDiscovery struct {
	config MDNSConfig
	logger *slog.Logger
	browse browseFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMDNSDiscovery creates an mDNS discoverer.
func NewMDNSDiscovery(config MDNSConfig) *MDNSDiscovery {
	if config.ServiceType == "" {
		config.ServiceType = ServiceTypeCore
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultBrowseRetry
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MDNSDiscovery{
		config: config,
		logger: logger.With("component", "mdns"),
		browse: zeroconf.Browse,
	}
}

// Start begins browsing.
func (d *MDNSDiscovery) Start(onFound func(Core)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.run(ctx, entries, removed)
	}()
	go func() {
		defer wg.Done()
		d.consume(ctx, entries, removed, onFound)
	}()

	done := d.done
	go func() {
		wg.Wait()
		close(done)
	}()
}

// Stop ends browsing and waits for the browser to exit.
func (d *MDNSDiscovery) Stop() {
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

// run browses until ctx is done. A failed or ended browse is started again
// after RetryInterval; the entry channels stay open across attempts.
func (d *MDNSDiscovery) run(ctx context.Context, entries, removed chan<- *zeroconf.ServiceEntry) {
	for {
		err := d.browse(ctx, d.config.ServiceType, Domain, entries, removed, d.browserOptions()...)
		if ctx.Err() != nil {
			return
		}
		d.logger.Debug("browse ended, retrying", "error", err, "delay", d.config.RetryInterval)

		timer := time.NewTimer(d.config.RetryInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (d *MDNSDiscovery) consume(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, onFound func(Core)) {
	seen := newDedupe()
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			core, ok := coreFromEntry(entry)
			if !ok || !seen.first(core) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			d.logger.Debug("core found", "host", core.Host, "port", core.Port, "name", core.Name)
			onFound(core)

		case _, ok := <-removed:
			// Removals do not retract reports.
			if !ok {
				removed = nil
			}

		case <-ctx.Done():
			return
		}
	}
}

func (d *MDNSDiscovery) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if d.config.Interface != "" {
		iface, err := net.InterfaceByName(d.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// coreFromEntry converts a DNS-SD entry. IPv4 addresses are preferred over
// IPv6, and the host name is used when no address was resolved.
func coreFromEntry(entry *zeroconf.ServiceEntry) (Core, bool) {
	if entry == nil || entry.Port <= 0 {
		return Core{}, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		host = strings.TrimSuffix(entry.HostName, ".")
	}
	if host == "" {
		return Core{}, false
	}

	txt := parseTXT(entry.Text)
	name := txt[TXTName]
	if name == "" {
		name = entry.Instance
	}
	return Core{
		Host:           host,
		Port:           entry.Port,
		UniqueID:       txt[TXTUniqueID],
		Name:           name,
		DisplayVersion: txt[TXTDisplayVersion],
		Source:         SourceMDNS,
	}, true
}

// parseTXT splits key=value strings. Keys are case-insensitive; the first
// occurrence wins.
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		k = strings.ToLower(k)
		if k == "" {
			continue
		}
		if _, dup := out[k]; !dup {
			out[k] = v
		}
	}
	return out
}

var _ Discoverer = (*MDNSDiscovery)(nil)
