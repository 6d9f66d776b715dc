package discovery

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMDNSRetriesFailedBrowse(t *testing.T) {
	var calls atomic.Int32
	d := NewMDNSDiscovery(MDNSConfig{RetryInterval: 10 * time.Millisecond})
	d.browse = func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
		if calls.Add(1) < 3 {
			return errors.New("no multicast interface")
		}
		entry := &zeroconf.ServiceEntry{Port: 9330, AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")}}
		entry.Instance = "Kitchen"
		select {
		case entries <- entry:
		case <-ctx.Done():
		}
		<-ctx.Done()
		return ctx.Err()
	}

	found := make(chan Core, 1)
	d.Start(func(c Core) { found <- c })
	defer d.Stop()

	select {
	case c := <-found:
		assert.Equal(t, "10.0.0.5", c.Host)
		assert.Equal(t, 9330, c.Port)
		assert.Equal(t, SourceMDNS, c.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("core not reported after browse recovered")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestMDNSStopDuringRetryDelay(t *testing.T) {
	var calls atomic.Int32
	d := NewMDNSDiscovery(MDNSConfig{RetryInterval: time.Hour})
	d.browse = func(context.Context, string, string, chan<- *zeroconf.ServiceEntry, chan<- *zeroconf.ServiceEntry, ...zeroconf.ClientOption) error {
		calls.Add(1)
		return errors.New("socket closed")
	}

	d.Start(func(Core) {})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked while waiting to retry")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestMDNSDefaults(t *testing.T) {
	d := NewMDNSDiscovery(MDNSConfig{})
	assert.Equal(t, ServiceTypeCore, d.config.ServiceType)
	assert.Equal(t, DefaultBrowseRetry, d.config.RetryInterval)
}
