package discovery

import (
	"fmt"
	"log/slog"
	"sync"
)

// Multi merges several discoverers. A Core reported by more than one of them
// is passed on once per session.
type Multi struct {
	children []Discoverer

	mu      sync.Mutex
	running bool
}

// NewMulti combines discoverers.
func NewMulti(children ...Discoverer) *Multi {
	return &Multi{children: children}
}

// Start starts every child.
func (m *Multi) Start(onFound func(Core)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true

	var seenMu sync.Mutex
	seen := newDedupe()
	forward := func(c Core) {
		seenMu.Lock()
		fresh := seen.first(c)
		seenMu.Unlock()
		if fresh {
			onFound(c)
		}
	}
	for _, c := range m.children {
		c.Start(forward)
	}
}

// Stop stops every child.
func (m *Multi) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	for _, c := range m.children {
		c.Stop()
	}
}

// Config selects and configures discovery mechanisms.
type Config struct {
	// Mode is ModeSOOD, ModeMDNS or ModeBoth (default ModeSOOD).
	Mode string

	SOOD SOODConfig
	MDNS MDNSConfig

	// Logger is used by mechanisms that have none configured.
	Logger *slog.Logger
}

// New builds the discoverer described by config.
func New(config Config) (Discoverer, error) {
	if config.SOOD.Logger == nil {
		config.SOOD.Logger = config.Logger
	}
	if config.MDNS.Logger == nil {
		config.MDNS.Logger = config.Logger
	}

	switch config.Mode {
	case "", ModeSOOD:
		return NewSOODDiscovery(config.SOOD), nil
	case ModeMDNS:
		return NewMDNSDiscovery(config.MDNS), nil
	case ModeBoth:
		return NewMulti(NewSOODDiscovery(config.SOOD), NewMDNSDiscovery(config.MDNS)), nil
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", config.Mode)
	}
}

var _ Discoverer = (*Multi)(nil)
