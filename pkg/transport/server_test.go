package transport

import (
	"context"
	"testing"
	"time"

	"github.com/corelink/corelink-go/pkg/wire"
)

func TestNewServerRejectsUnknownKind(t *testing.T) {
	if _, err := NewServer(ServerConfig{Kind: "udp"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestServerStartStop(t *testing.T) {
	srv, err := NewServer(ServerConfig{})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if srv.Port() == 0 {
		t.Error("expected ephemeral port")
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestServerConnectionTracking(t *testing.T) {
	for _, kind := range []string{KindTCP, KindWebSocket} {
		t.Run(kind, func(t *testing.T) {
			disconnected := make(chan struct{}, 4)
			srv, err := NewServer(ServerConfig{
				Kind:         kind,
				OnDisconnect: func(*ServerConn) { disconnected <- struct{}{} },
			})
			if err != nil {
				t.Fatalf("NewServer failed: %v", err)
			}
			if err := srv.Start(context.Background()); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer srv.Stop()

			clients := make([]*Client, 3)
			for i := range clients {
				clients[i] = newTestClient(kind, newMockHandler())
				if err := clients[i].Connect(context.Background(), "127.0.0.1", srv.Port()); err != nil {
					t.Fatalf("Connect %d failed: %v", i, err)
				}
			}

			waitFor(t, func() bool { return srv.ConnectionCount() == 3 })

			clients[0].Disconnect()
			select {
			case <-disconnected:
			case <-time.After(2 * time.Second):
				t.Fatal("OnDisconnect not called")
			}
			waitFor(t, func() bool { return srv.ConnectionCount() == 2 })

			for _, c := range clients[1:] {
				c.Disconnect()
			}
		})
	}
}

func TestServerBroadcast(t *testing.T) {
	srv := echoServer(t, KindTCP)
	handlers := []*mockHandler{newMockHandler(), newMockHandler()}
	for _, h := range handlers {
		c := newTestClient(KindTCP, h)
		if err := c.Connect(context.Background(), "127.0.0.1", srv.Port()); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer c.Disconnect()
	}
	waitFor(t, func() bool { return srv.ConnectionCount() == 2 })

	srv.Broadcast(wire.NewRequest(77, "svc.ping:1/ping", wire.Body{}))
	for _, h := range handlers {
		if msg := h.waitMessage(t); msg.RequestID != 77 || !msg.IsRequest() {
			t.Errorf("unexpected broadcast %v", msg)
		}
	}
}

func TestServerConnSendAfterClose(t *testing.T) {
	connected := make(chan *ServerConn, 1)
	srv, _ := NewServer(ServerConfig{OnConnect: func(c *ServerConn) { connected <- c }})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	c := newTestClient(KindTCP, newMockHandler())
	if err := c.Connect(context.Background(), "127.0.0.1", srv.Port()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	sconn := <-connected
	if sconn.ConnID() == "" || sconn.RemoteAddr() == nil {
		t.Error("expected connection id and address")
	}
	sconn.Close()
	if err := sconn.Send(wire.NewComplete(1, wire.StatusSuccess, wire.Body{})); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
