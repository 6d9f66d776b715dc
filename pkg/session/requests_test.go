package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corelink/corelink-go/pkg/wire"
)

func TestSendRequestNotConnected(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.SendRequest(context.Background(), "svc.browse:1/browse", wire.Body{})
	assert.ErrorIs(t, err, ErrNotConnected)

	// Registering is not connected for callers either.
	require.NoError(t, h.s.ConnectDirect("10.0.0.5", 9330))
	h.transport.expect(t, "svc.registry:1/info")
	_, err = h.s.SendRequest(context.Background(), "svc.browse:1/browse", wire.Body{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendRequestRejectsInvalidName(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	_, err := h.s.SendRequest(context.Background(), "", wire.Body{})
	assert.ErrorIs(t, err, wire.ErrEmptyName)
}

func TestSendRequestCorrelatesOutOfOrder(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	first := h.request("svc.browse:1/browse", wire.MustJSONBody(map[string]any{"hierarchy": "browse"}))
	reqA := h.transport.expect(t, "svc.browse:1/browse")
	second := h.request("svc.browse:1/load", wire.MustJSONBody(map[string]any{"hierarchy": "browse"}))
	reqB := h.transport.expect(t, "svc.browse:1/load")
	assert.NotEqual(t, reqA.RequestID, reqB.RequestID)

	h.transport.deliver(wire.NewComplete(reqB.RequestID, wire.StatusSuccess, wire.MustJSONBody(map[string]any{"which": "b"})))
	h.transport.deliver(wire.NewComplete(reqA.RequestID, wire.StatusSuccess, wire.MustJSONBody(map[string]any{"which": "a"})))

	ra := awaitResult(t, first)
	rb := awaitResult(t, second)
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	assert.Equal(t, "a", ra.msg.Body.Map()["which"])
	assert.Equal(t, "b", rb.msg.Body.Map()["which"])
}

func TestSendRequestIgnoresContinue(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	res := h.request("svc.browse:1/browse", wire.Body{})
	req := h.transport.expect(t, "svc.browse:1/browse")

	h.transport.deliver(wire.NewContinue(req.RequestID, wire.StatusChanged, wire.Body{}))
	h.sync(t)
	select {
	case <-res:
		t.Fatal("CONTINUE must not complete a request")
	default:
	}

	h.transport.deliver(wire.NewComplete(req.RequestID, wire.StatusSuccess, wire.Body{}))
	r := awaitResult(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, wire.StatusSuccess, r.msg.Name)
}

func TestCompleteForUnknownRequestIgnored(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.transport.deliver(wire.NewComplete(999, wire.StatusSuccess, wire.Body{}))
	h.transport.deliver(wire.NewContinue(998, wire.StatusChanged, wire.Body{}))
	h.sync(t)
	assert.True(t, h.s.State().IsConnected())

	res := h.request("svc.browse:1/browse", wire.Body{})
	req := h.transport.expect(t, "svc.browse:1/browse")
	h.transport.deliver(wire.NewComplete(req.RequestID, wire.StatusSuccess, wire.Body{}))
	require.NoError(t, awaitResult(t, res).err)
}

func TestSendRequestTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := newHarness(t, func(c *Config) { c.Metrics = m })
	h.connect(t)

	res := h.request("svc.browse:1/browse", wire.Body{})
	req := h.transport.expect(t, "svc.browse:1/browse")

	h.clock.Add(DefaultRequestTimeout - time.Millisecond)
	h.sync(t)
	select {
	case <-res:
		t.Fatal("request completed before its timeout")
	default:
	}

	h.clock.Add(time.Millisecond)
	assert.ErrorIs(t, awaitResult(t, res).err, ErrTimeout)

	// A late COMPLETE is ignored.
	h.transport.deliver(wire.NewComplete(req.RequestID, wire.StatusSuccess, wire.Body{}))
	h.sync(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(outcomeTimeout)))
	assert.True(t, h.s.State().IsConnected())
}

func TestSendRequestCustomTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RequestTimeout = 5 * time.Second })
	h.connect(t)

	res := h.request("svc.browse:1/browse", wire.Body{})
	h.transport.expect(t, "svc.browse:1/browse")
	h.clock.Add(5 * time.Second)
	assert.ErrorIs(t, awaitResult(t, res).err, ErrTimeout)
}

func TestSendRequestContextCanceled(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan result, 1)
	go func() {
		msg, err := h.s.SendRequest(ctx, "svc.browse:1/browse", wire.Body{})
		res <- result{msg: msg, err: err}
	}()
	req := h.transport.expect(t, "svc.browse:1/browse")

	cancel()
	assert.ErrorIs(t, awaitResult(t, res).err, context.Canceled)

	h.transport.deliver(wire.NewComplete(req.RequestID, wire.StatusSuccess, wire.Body{}))
	h.sync(t)
	assert.True(t, h.s.State().IsConnected())
}

func TestDisconnectFailsPendingRequests(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	res := h.request("svc.browse:1/browse", wire.Body{})
	h.transport.expect(t, "svc.browse:1/browse")

	require.NoError(t, h.s.Disconnect())
	assert.ErrorIs(t, awaitResult(t, res).err, ErrNotConnected)
	h.rec.waitState(t, Disconnected())

	// Explicit disconnects do not reconnect.
	h.clock.Add(time.Minute)
	h.sync(t)
	assert.Equal(t, 1, h.transport.connectCount())
}

func TestConnectionLossFailsPendingRequests(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	res := h.request("svc.browse:1/browse", wire.Body{})
	h.transport.expect(t, "svc.browse:1/browse")

	h.transport.drop()
	assert.ErrorIs(t, awaitResult(t, res).err, ErrNotConnected)
	h.rec.waitState(t, Disconnected())
}
