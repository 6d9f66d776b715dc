package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/persistence"
	"github.com/corelink/corelink-go/pkg/transport"
	"github.com/corelink/corelink-go/pkg/wire"
)

const corePingID = 1000

// startCore runs a scripted Core that registers every client and pings it
// once the zones subscription arrives.
func startCore(t *testing.T, kind string, pongs chan<- *wire.Message) *transport.Server {
	t.Helper()
	srv, err := transport.NewServer(transport.ServerConfig{
		Kind:   kind,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnMessage: func(conn *transport.ServerConn, msg *wire.Message) {
			if !msg.IsRequest() {
				if msg.RequestID == corePingID {
					pongs <- msg
				}
				return
			}
			var reply *wire.Message
			switch msg.Name {
			case "svc.registry:1/info":
				reply = infoReply(msg.RequestID)
			case "svc.registry:1/register":
				reply = registeredReply(msg.RequestID, "loop-token")
			case "svc.transport:2/subscribe_zones":
				reply = wire.NewContinue(msg.RequestID, wire.StatusSubscribed,
					wire.MustJSONBody(map[string]any{"zones": []any{}}))
				defer func() {
					_ = conn.Send(wire.NewRequest(corePingID, "svc.ping:1/ping", wire.Body{}))
				}()
			case "svc.browse:1/browse":
				reply = wire.NewComplete(msg.RequestID, wire.StatusSuccess, msg.Body)
			default:
				reply = wire.NewComplete(msg.RequestID, wire.StatusInvalidRequest, wire.Body{})
			}
			_ = conn.Send(reply)
		},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestLoopback(t *testing.T) {
	for _, kind := range []string{transport.KindTCP, transport.KindWebSocket} {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			pongs := make(chan *wire.Message, 1)
			srv := startCore(t, kind, pongs)

			capture, err := log.NewFileLogger(filepath.Join(dir, "session.clog"))
			require.NoError(t, err)

			dialer, err := transport.DialerForKind(kind, 0)
			require.NoError(t, err)
			tc := transport.DefaultConfig()
			tc.Dialer = dialer

			rec := newRecorder()
			keystore := persistence.NewFileStore(filepath.Join(dir, persistence.TokenFileName))
			s := New(Config{
				Transport:      transport.NewClient(tc, nil),
				Keystore:       keystore,
				Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
				ProtocolLogger: capture,
				OnStateChange:  func(st State) { rec.states <- st },
				OnZonesData:    func(data []byte) { rec.zones <- data },
			})
			defer s.Close()

			require.NoError(t, s.ConnectDirect("127.0.0.1", srv.Port()))
			rec.waitState(t, Connected("CoreName"))
			assert.JSONEq(t, `{"zones":[]}`, string(rec.nextZones(t)))

			select {
			case pong := <-pongs:
				assert.Equal(t, wire.VerbComplete, pong.Verb)
				assert.Equal(t, wire.StatusSuccess, pong.Name)
			case <-time.After(waitTimeout):
				t.Fatal("ping was not answered")
			}

			ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
			defer cancel()
			resp, err := s.SendRequest(ctx, "svc.browse:1/browse", wire.MustJSONBody(map[string]any{"hierarchy": "browse"}))
			require.NoError(t, err)
			assert.Equal(t, "browse", resp.Body.Map()["hierarchy"])

			tok, err := keystore.LoadToken()
			require.NoError(t, err)
			require.NotNil(t, tok)
			assert.Equal(t, "loop-token", tok.Token)

			require.NoError(t, s.Disconnect())
			rec.waitState(t, Disconnected())
			require.NoError(t, s.Close())
			require.NoError(t, capture.Close())

			r, err := log.NewReader(filepath.Join(dir, "session.clog"))
			require.NoError(t, err)
			defer r.Close()
			stats := log.NewStats()
			probes := 0
			for {
				ev, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				stats.Add(ev)
				if ev.Probe != nil {
					probes++
					assert.True(t, ev.Probe.Answered)
				}
			}
			assert.Equal(t, 1, probes)
			assert.Positive(t, stats.ByCategory[log.CategoryMessage])
			assert.Positive(t, stats.ByCategory[log.CategoryState])
		})
	}
}
