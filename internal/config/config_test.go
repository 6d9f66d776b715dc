package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/persistence"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/transport"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.Set("data_dir", t.TempDir())

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, transport.KindTCP, cfg.Transport.Kind)
	assert.Equal(t, 10*time.Second, cfg.Transport.ConnectTimeout)
	assert.Equal(t, discovery.ModeSOOD, cfg.Discovery.Mode)
	assert.Equal(t, discovery.DefaultQueryInterval, cfg.Discovery.Interval)
	assert.Equal(t, persistence.BackendFile, cfg.Keystore.Backend)
	assert.Equal(t, 30*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, 100, cfg.Session.QueueItemCount)
	assert.Equal(t, registration.DefaultIdentity().ExtensionID, cfg.Extension.ExtensionID)
	assert.Equal(t, registration.DefaultIdentity().OptionalServices, cfg.Extension.OptionalServices)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.False(t, cfg.Core.HasAddress())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "corelink.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
core:
  host: 192.168.1.20
  port: 9330
transport:
  kind: websocket
discovery:
  mode: both
  interval: 3s
extension:
  extension_id: com.example.test
  display_name: Test Extension
observability:
  log_level: debug
`), 0o600))

	t.Setenv("CORELINK_CORE_PORT", "9100")
	t.Setenv("CORELINK_KEYSTORE_BACKEND", "memory")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20", cfg.Core.Host)
	assert.Equal(t, 9100, cfg.Core.Port, "environment overrides the file")
	assert.True(t, cfg.Core.HasAddress())
	assert.Equal(t, transport.KindWebSocket, cfg.Transport.Kind)
	assert.Equal(t, discovery.ModeBoth, cfg.Discovery.Mode)
	assert.Equal(t, 3*time.Second, cfg.Discovery.Interval)
	assert.Equal(t, persistence.BackendMemory, cfg.Keystore.Backend)
	assert.Equal(t, "com.example.test", cfg.Extension.ExtensionID)
	assert.Equal(t, "Test Extension", cfg.Extension.DisplayName)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoadConfigInDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("keystore:\n  backend: badger\n"), 0o600))

	v := viper.New()
	v.Set("data_dir", dir)
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, persistence.BackendBadger, cfg.Keystore.Backend)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFlags(t *testing.T) {
	v := viper.New()
	cmd := &cobra.Command{Use: "test"}
	BindGlobalFlags(cmd, v)
	AddConnectFlags(cmd)

	require.NoError(t, cmd.ParseFlags([]string{
		"--data-dir", t.TempDir(),
		"--host", "core.local",
		"--port", "9330",
		"--transport", "websocket",
		"--request-timeout", "5s",
	}))
	BindFlags(v, cmd.Flags())
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "core.local", cfg.Core.Host)
	assert.Equal(t, 9330, cfg.Core.Port)
	assert.Equal(t, transport.KindWebSocket, cfg.Transport.Kind)
	assert.Equal(t, 5*time.Second, cfg.Session.RequestTimeout)
}

func TestBindFlagsExecutingCommandWins(t *testing.T) {
	v := viper.New()
	first := &cobra.Command{Use: "first"}
	second := &cobra.Command{Use: "second"}
	AddConnectFlags(first)
	AddConnectFlags(second)

	require.NoError(t, first.ParseFlags([]string{"--host", "a.local"}))
	require.NoError(t, second.ParseFlags(nil))
	BindFlags(v, second.Flags())
	BindFlags(v, first.Flags())

	v.Set("data_dir", t.TempDir())
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "a.local", cfg.Core.Host)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		v := viper.New()
		v.Set("data_dir", t.TempDir())
		cfg, err := Load(v, "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"transport kind", func(c *Config) { c.Transport.Kind = "quic" }},
		{"discovery mode", func(c *Config) { c.Discovery.Mode = "upnp" }},
		{"core port", func(c *Config) { c.Core.Port = 70000 }},
		{"extension id", func(c *Config) { c.Extension.ExtensionID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			require.NoError(t, cfg.Validate())
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBuilders(t *testing.T) {
	v := viper.New()
	v.Set("data_dir", t.TempDir())
	v.Set("transport.kind", transport.KindWebSocket)
	v.Set("transport.read_timeout", "45s")
	v.Set("discovery.interval", "2s")
	v.Set("discovery.interface", "eth0")
	cfg, err := Load(v, "")
	require.NoError(t, err)

	tc, err := cfg.TransportClientConfig(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.WebSocketDialer{}, tc.Dialer)
	assert.Equal(t, 45*time.Second, tc.ReadTimeout)

	dc := cfg.DiscoveryOptions(nil)
	assert.Equal(t, discovery.ModeSOOD, dc.Mode)
	assert.Equal(t, 2*time.Second, dc.SOOD.Interval)
	assert.Equal(t, "eth0", dc.SOOD.Interface)
	assert.Equal(t, "eth0", dc.MDNS.Interface)
	assert.Equal(t, discovery.ServiceTypeCore, dc.MDNS.ServiceType)
}
