package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/persistence"
	"github.com/corelink/corelink-go/pkg/transport"
	"github.com/corelink/corelink-go/pkg/wire"
)

const waitTimeout = 2 * time.Second

// fakeTransport is a scripted in-memory transport. Sent frames appear on
// sent; tests inject inbound frames with deliver and losses with drop.
type fakeTransport struct {
	mu          sync.Mutex
	handler     transport.Handler
	connected   bool
	connectErr  error
	targets     []string
	disconnects int

	// gate, when set, holds every Send until it is closed. Each held Send
	// is announced on held.
	gate chan struct{}
	held chan struct{}

	sent chan *wire.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan *wire.Message, 256), held: make(chan struct{}, 16)}
}

func (f *fakeTransport) SetHandler(h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) Connect(ctx context.Context, host string, port int) error {
	f.mu.Lock()
	f.targets = append(f.targets, discovery.Core{Host: host, Port: port}.Address())
	if f.connectErr != nil {
		err := f.connectErr
		h := f.handler
		f.mu.Unlock()
		h.OnStateChange(transport.StateConnecting, transport.StateDisconnected)
		return err
	}
	if f.connected {
		f.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	f.connected = true
	h := f.handler
	f.mu.Unlock()

	h.OnStateChange(transport.StateDisconnected, transport.StateConnecting)
	h.OnStateChange(transport.StateConnecting, transport.StateConnected)
	return nil
}

func (f *fakeTransport) Send(msg *wire.Message) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		f.held <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	connected := f.connected
	f.mu.Unlock()
	if !connected {
		return transport.ErrNotConnected
	}
	f.sent <- msg
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	f.drop()
	return nil
}

// drop simulates a lost connection.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	h := f.handler
	f.mu.Unlock()
	if was {
		h.OnStateChange(transport.StateConnected, transport.StateDisconnected)
	}
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeTransport) deliver(msg *wire.Message) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnMessage(msg)
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}

func (f *fakeTransport) lastTarget() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.targets) == 0 {
		return ""
	}
	return f.targets[len(f.targets)-1]
}

// holdSends makes Send block until the returned release func is called.
func (f *fakeTransport) holdSends() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
	}
}

// waitHeld waits until a Send is blocked by holdSends.
func (f *fakeTransport) waitHeld(t *testing.T) {
	t.Helper()
	select {
	case <-f.held:
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for a held send")
	}
}

// next returns the next frame the session sent.
func (f *fakeTransport) next(t *testing.T) *wire.Message {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for outbound frame")
		return nil
	}
}

// expect returns the next frame and checks its name.
func (f *fakeTransport) expect(t *testing.T, name string) *wire.Message {
	t.Helper()
	msg := f.next(t)
	require.Equal(t, wire.VerbRequest, msg.Verb, "frame %s", msg)
	require.Equal(t, name, msg.Name)
	return msg
}

// expectNone checks that nothing was sent for a short while.
func (f *fakeTransport) expectNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.sent:
		t.Fatalf("unexpected frame %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeDiscovery reports cores only when the test calls found.
type fakeDiscovery struct {
	mu      sync.Mutex
	onFound func(discovery.Core)
	starts  int
	stops   int
}

func (d *fakeDiscovery) Start(onFound func(discovery.Core)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onFound = onFound
	d.starts++
}

func (d *fakeDiscovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onFound != nil {
		d.stops++
	}
	d.onFound = nil
}

func (d *fakeDiscovery) found(c discovery.Core) {
	d.mu.Lock()
	fn := d.onFound
	d.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (d *fakeDiscovery) running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onFound != nil
}

func (d *fakeDiscovery) startCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// recorder collects upward callbacks.
type recorder struct {
	states chan State
	zones  chan []byte
	queues chan queuePush
}

type queuePush struct {
	zoneID string
	data   []byte
}

func newRecorder() *recorder {
	return &recorder{
		states: make(chan State, 256),
		zones:  make(chan []byte, 256),
		queues: make(chan queuePush, 256),
	}
}

// waitState reads transitions until want is seen.
func (r *recorder) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-r.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %s", want)
		}
	}
}

// nextState returns the next transition.
func (r *recorder) nextState(t *testing.T) State {
	t.Helper()
	select {
	case s := <-r.states:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for state change")
		return State{}
	}
}

func (r *recorder) nextZones(t *testing.T) []byte {
	t.Helper()
	select {
	case d := <-r.zones:
		return d
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for zones data")
		return nil
	}
}

func (r *recorder) nextQueue(t *testing.T) queuePush {
	t.Helper()
	select {
	case q := <-r.queues:
		return q
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for queue data")
		return queuePush{}
	}
}

// harness bundles a session with its fakes.
type harness struct {
	s         *Session
	transport *fakeTransport
	discovery *fakeDiscovery
	keystore  *persistence.MemoryStore
	clock     *clock.Mock
	rec       *recorder
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		transport: newFakeTransport(),
		discovery: &fakeDiscovery{},
		keystore:  persistence.NewMemoryStore(),
		clock:     clock.NewMock(),
		rec:       newRecorder(),
	}
	cfg := Config{
		Transport: h.transport,
		Discovery: h.discovery,
		Keystore:  h.keystore,
		Clock:     h.clock,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnStateChange: func(s State) {
			h.rec.states <- s
		},
		OnZonesData: func(data []byte) {
			h.rec.zones <- data
		},
		OnQueueData: func(zoneID string, data []byte) {
			h.rec.queues <- queuePush{zoneID: zoneID, data: data}
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.s = New(cfg)
	t.Cleanup(func() { h.s.Close() })
	return h
}

// sync waits until the event loop has processed everything queued so far.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.do(func() error { return nil }))
}

func infoReply(id int64) *wire.Message {
	return wire.NewComplete(id, wire.StatusSuccess, wire.MustJSONBody(map[string]any{
		"core_id":         "core-1",
		"display_name":    "CoreName",
		"display_version": "1.8",
		"services":        []string{"svc.transport:2", "svc.browse:1", "svc.image:1"},
	}))
}

func registeredReply(id int64, token string) *wire.Message {
	return wire.NewComplete(id, wire.StatusRegistered, wire.MustJSONBody(map[string]any{
		"core_id":      "core-1",
		"display_name": "CoreName",
		"token":        token,
	}))
}

// register drives the handshake to Connected and returns the zones
// subscription request.
func (h *harness) register(t *testing.T) *wire.Message {
	t.Helper()
	info := h.transport.expect(t, "svc.registry:1/info")
	h.transport.deliver(infoReply(info.RequestID))

	reg := h.transport.expect(t, "svc.registry:1/register")
	h.transport.deliver(registeredReply(reg.RequestID, "abc"))

	zones := h.transport.expect(t, "svc.transport:2/subscribe_zones")
	h.rec.waitState(t, Connected("CoreName"))
	return zones
}

// connect connects directly and registers.
func (h *harness) connect(t *testing.T) *wire.Message {
	t.Helper()
	require.NoError(t, h.s.ConnectDirect("10.0.0.5", 9330))
	return h.register(t)
}

// waitPhase reads transitions until one with phase p is seen.
func (r *recorder) waitPhase(t *testing.T, p Phase) State {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-r.states:
			if s.Phase == p {
				return s
			}
		case <-deadline:
			t.Fatalf("timeout waiting for phase %s", p)
			return State{}
		}
	}
}

// eventuallyConnects waits until the transport saw n connect calls.
func (h *harness) eventuallyConnects(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.transport.connectCount() == n },
		waitTimeout, 5*time.Millisecond, "want %d connects", n)
}

// request sends a request on its own goroutine.
func (h *harness) request(name string, body wire.Body) <-chan result {
	out := make(chan result, 1)
	go func() {
		msg, err := h.s.SendRequest(context.Background(), name, body)
		out <- result{msg: msg, err: err}
	}()
	return out
}

func awaitResult(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for request result")
		return result{}
	}
}
