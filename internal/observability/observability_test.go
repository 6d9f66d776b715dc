package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveFormat(t *testing.T) {
	var buf bytes.Buffer
	if got := ResolveFormat("", &buf); got != FormatText {
		t.Errorf("auto for buffer = %q, want text", got)
	}
	if got := ResolveFormat(FormatAuto, &buf); got != FormatText {
		t.Errorf("auto for buffer = %q, want text", got)
	}
	for _, f := range []string{FormatText, FormatJSON, FormatPretty} {
		if got := ResolveFormat(f, &buf); got != f {
			t.Errorf("ResolveFormat(%q) = %q", f, got)
		}
	}
}

func TestSetupLoggerJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupLogger("debug", FormatJSON, &buf)
	logger.Debug("hello", "request_id", 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hello" || rec["request_id"] != float64(7) {
		t.Errorf("unexpected record %v", rec)
	}
	if slog.Default() != logger {
		t.Error("SetupLogger should install the default logger")
	}
}

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Debug("hidden")
	logger.With("component", "session").WithGroup("core").Warn("state changed", "name", "Kitchen")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record should be filtered")
	}
	for _, want := range []string{"WRN", "state changed", "component=", "core.name=", "Kitchen"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestMetricsServer(t *testing.T) {
	reg := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "corelink_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv, err := NewMetricsServer("127.0.0.1:0", reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewMetricsServer failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "corelink_test_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}

	resp, err = http.Get("http://" + srv.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
