package discovery

import (
	"context"
	"net"
	"strconv"
)

// Source names the mechanism that found a Core.
type Source string

// Discovery sources.
const (
	SourceSOOD Source = "sood"
	SourceMDNS Source = "mdns"
)

// Modes accepted by New.
const (
	ModeSOOD = "sood"
	ModeMDNS = "mdns"
	ModeBoth = "both"
)

// Core is one discovered server.
type Core struct {
	// Host is the address to connect to.
	Host string

	// Port is the frame endpoint port.
	Port int

	// UniqueID identifies the Core across restarts, if announced.
	UniqueID string

	// Name is the display name, if announced.
	Name string

	// DisplayVersion is the Core version string, if announced.
	DisplayVersion string

	// Source is the mechanism that reported the Core.
	Source Source
}

// Address returns host:port.
func (c Core) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// key identifies a Core for duplicate suppression.
func (c Core) key() string {
	return c.UniqueID + "|" + c.Address()
}

// Discoverer reports Cores until stopped.
type Discoverer interface {
	// Start begins discovery and calls onFound for every distinct Core.
	// onFound is called from a discovery goroutine and must not block.
	// Calling Start on a running discoverer has no effect.
	Start(onFound func(Core))

	// Stop ends discovery. No onFound call is in progress or made after
	// Stop returns. It is safe to call when already stopped.
	Stop()
}

// First runs d until one Core is found or ctx ends.
func First(ctx context.Context, d Discoverer) (Core, error) {
	found := make(chan Core, 1)
	d.Start(func(c Core) {
		select {
		case found <- c:
		default:
		}
	})
	defer d.Stop()

	select {
	case c := <-found:
		return c, nil
	case <-ctx.Done():
		return Core{}, ctx.Err()
	}
}

// dedupe suppresses repeated reports within one session.
type dedupe struct {
	seen map[string]struct{}
}

func newDedupe() *dedupe {
	return &dedupe{seen: make(map[string]struct{})}
}

// first reports whether c has not been seen before and records it.
func (d *dedupe) first(c Core) bool {
	k := c.key()
	if _, ok := d.seen[k]; ok {
		return false
	}
	d.seen[k] = struct{}{}
	return true
}
