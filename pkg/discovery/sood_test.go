package discovery

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCore answers SOOD queries on a loopback UDP socket.
type fakeCore struct {
	t    *testing.T
	conn *net.UDPConn

	mu      sync.Mutex
	queries []*Packet
	reply   func(q *Packet) *Packet
}

func newFakeCore(t *testing.T, reply func(q *Packet) *Packet) *fakeCore {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	f := &fakeCore{t: t, conn: conn, reply: reply}
	go f.serve()
	t.Cleanup(func() { conn.Close() })
	return f
}

func (f *fakeCore) addr() string {
	return f.conn.LocalAddr().String()
}

func (f *fakeCore) serve() {
	buf := make([]byte, 2048)
	for {
		n, from, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		var q Packet
		if q.UnmarshalBinary(buf[:n]) != nil || q.Type != PacketQuery {
			continue
		}
		f.mu.Lock()
		f.queries = append(f.queries, &q)
		f.mu.Unlock()

		resp := f.reply(&q)
		if resp == nil {
			continue
		}
		data, err := resp.MarshalBinary()
		if err != nil {
			continue
		}
		_, _ = f.conn.WriteToUDP(data, from)
	}
}

func (f *fakeCore) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func coreResponse(uniqueID string, port int) *Packet {
	p := &Packet{Type: PacketResponse}
	p.Set(PropServiceID, DefaultServiceID)
	p.Set(PropUniqueID, uniqueID)
	p.Set(PropName, "Test Core")
	p.Set(PropDisplayVersion, "1.0 (build 1)")
	p.Set(PropHTTPPort, strconv.Itoa(port))
	return p
}

func newTestSOOD(targets ...string) *SOODDiscovery {
	return NewSOODDiscovery(SOODConfig{
		QueryAddrs: targets,
		Interval:   20 * time.Millisecond,
		ListenAddr: "127.0.0.1:0",
	})
}

// collector gathers reported cores.
type collector struct {
	mu    sync.Mutex
	cores []Core
	ch    chan Core
}

func newCollector() *collector {
	return &collector{ch: make(chan Core, 16)}
}

func (c *collector) found(core Core) {
	c.mu.Lock()
	c.cores = append(c.cores, core)
	c.mu.Unlock()
	c.ch <- core
}

func (c *collector) next(t *testing.T) Core {
	t.Helper()
	select {
	case core := <-c.ch:
		return core
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for core")
		return Core{}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cores)
}

func TestSOODFindsCore(t *testing.T) {
	core := newFakeCore(t, func(q *Packet) *Packet {
		return coreResponse("core-1", 9100)
	})

	d := newTestSOOD(core.addr())
	c := newCollector()
	d.Start(c.found)
	defer d.Stop()

	got := c.next(t)
	assert.Equal(t, "127.0.0.1", got.Host)
	assert.Equal(t, 9100, got.Port)
	assert.Equal(t, "core-1", got.UniqueID)
	assert.Equal(t, "Test Core", got.Name)
	assert.Equal(t, "1.0 (build 1)", got.DisplayVersion)
	assert.Equal(t, SourceSOOD, got.Source)
	assert.Equal(t, "127.0.0.1:9100", got.Address())
}

func TestSOODQueryContent(t *testing.T) {
	core := newFakeCore(t, func(q *Packet) *Packet { return nil })

	d := newTestSOOD(core.addr())
	d.Start(func(Core) {})
	defer d.Stop()

	require.Eventually(t, func() bool { return core.queryCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	core.mu.Lock()
	q1, q2 := core.queries[0], core.queries[1]
	core.mu.Unlock()

	sid, _ := q1.Get(PropQueryServiceID)
	assert.Equal(t, DefaultServiceID, sid)

	tid1, ok := q1.Get(PropTransactionID)
	require.True(t, ok)
	tid2, _ := q2.Get(PropTransactionID)
	assert.NotEqual(t, tid1, tid2, "each query carries a fresh transaction id")
}

func TestSOODReportsCoreOnce(t *testing.T) {
	core := newFakeCore(t, func(q *Packet) *Packet {
		return coreResponse("core-1", 9100)
	})

	d := newTestSOOD(core.addr())
	c := newCollector()
	d.Start(c.found)
	defer d.Stop()

	c.next(t)
	require.Eventually(t, func() bool { return core.queryCount() >= 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestSOODReplyAddrOverridesSource(t *testing.T) {
	core := newFakeCore(t, func(q *Packet) *Packet {
		p := coreResponse("core-1", 9100)
		p.Set(PropReplyAddr, "192.0.2.10")
		return p
	})

	d := newTestSOOD(core.addr())
	c := newCollector()
	d.Start(c.found)
	defer d.Stop()

	got := c.next(t)
	assert.Equal(t, "192.0.2.10", got.Host)
}

func TestSOODIgnoresInvalidResponses(t *testing.T) {
	var n int
	var mu sync.Mutex
	core := newFakeCore(t, func(q *Packet) *Packet {
		mu.Lock()
		defer mu.Unlock()
		n++
		switch n {
		case 1:
			p := coreResponse("other", 9100)
			p.Set(PropServiceID, "some-other-service")
			return p
		case 2:
			p := coreResponse("no-port", 0)
			p.Set(PropHTTPPort, "not-a-number")
			return p
		default:
			return coreResponse("good", 9200)
		}
	})

	d := newTestSOOD(core.addr())
	c := newCollector()
	d.Start(c.found)
	defer d.Stop()

	got := c.next(t)
	assert.Equal(t, "good", got.UniqueID)
	assert.Equal(t, 1, c.count())
}

func TestSOODStopHaltsReports(t *testing.T) {
	core := newFakeCore(t, func(q *Packet) *Packet {
		return coreResponse("core-1", 9100)
	})

	d := newTestSOOD(core.addr())
	c := newCollector()
	d.Start(c.found)
	c.next(t)
	d.Stop()
	d.Stop()

	before := core.queryCount()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, before, core.queryCount(), "no queries after Stop")
}

func TestSOODRestartForgetsSeenCores(t *testing.T) {
	core := newFakeCore(t, func(q *Packet) *Packet {
		return coreResponse("core-1", 9100)
	})

	d := newTestSOOD(core.addr())
	c := newCollector()

	d.Start(c.found)
	c.next(t)
	d.Stop()

	d.Start(c.found)
	defer d.Stop()
	c.next(t)
	assert.Equal(t, 2, c.count())
}

func TestSOODDefaults(t *testing.T) {
	d := NewSOODDiscovery(SOODConfig{})
	assert.Equal(t, DefaultServiceID, d.config.ServiceID)
	assert.Equal(t, []string{DefaultMulticastAddr, DefaultBroadcastAddr}, d.config.QueryAddrs)
	assert.Equal(t, DefaultQueryInterval, d.config.Interval)
}
