// Package config loads corelink command configuration from flags, the
// environment and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/transport"
)

// EnvPrefix prefixes environment overrides, e.g. CORELINK_CORE_HOST.
const EnvPrefix = "CORELINK"

// Config is the full command configuration.
type Config struct {
	DataDir       string                `mapstructure:"data_dir"`
	Core          CoreConfig            `mapstructure:"core"`
	Transport     TransportConfig       `mapstructure:"transport"`
	Discovery     DiscoveryConfig       `mapstructure:"discovery"`
	Keystore      KeystoreConfig        `mapstructure:"keystore"`
	Session       SessionConfig         `mapstructure:"session"`
	Extension     registration.Identity `mapstructure:"extension"`
	Observability ObservabilityConfig   `mapstructure:"observability"`
}

// CoreConfig names a Core to connect to without discovery.
type CoreConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// HasAddress reports whether a direct address is configured.
func (c CoreConfig) HasAddress() bool {
	return c.Host != "" && c.Port > 0
}

// TransportConfig selects and tunes the message transport.
type TransportConfig struct {
	Kind           string        `mapstructure:"kind"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxMessageSize int           `mapstructure:"max_message_size"`
}

// DiscoveryConfig selects and tunes Core discovery.
type DiscoveryConfig struct {
	Mode        string        `mapstructure:"mode"`
	Interval    time.Duration `mapstructure:"interval"`
	Interface   string        `mapstructure:"interface"`
	ServiceID   string        `mapstructure:"service_id"`
	ServiceType string        `mapstructure:"service_type"`
}

// KeystoreConfig selects the token store.
type KeystoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// SessionConfig tunes the orchestrator.
type SessionConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QueueItemCount int           `mapstructure:"queue_item_count"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	ProtocolLog string `mapstructure:"protocol_log"`
}

// DefaultDataDir returns ~/.corelink, or .corelink without a home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".corelink"
	}
	return filepath.Join(home, ".corelink")
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	switch c.Transport.Kind {
	case transport.KindTCP, transport.KindWebSocket:
	default:
		return fmt.Errorf("transport.kind: unknown kind %q", c.Transport.Kind)
	}
	switch c.Discovery.Mode {
	case discovery.ModeSOOD, discovery.ModeMDNS, discovery.ModeBoth:
	default:
		return fmt.Errorf("discovery.mode: unknown mode %q", c.Discovery.Mode)
	}
	if c.Core.Port < 0 || c.Core.Port > 65535 {
		return fmt.Errorf("core.port: %d out of range", c.Core.Port)
	}
	if c.Extension.ExtensionID == "" {
		return fmt.Errorf("extension.extension_id must not be empty")
	}
	return nil
}

// TransportClientConfig builds the transport client configuration.
func (c Config) TransportClientConfig(logger *slog.Logger, plog log.Logger) (transport.Config, error) {
	dialer, err := transport.DialerForKind(c.Transport.Kind, c.Transport.MaxMessageSize)
	if err != nil {
		return transport.Config{}, err
	}
	tc := transport.DefaultConfig()
	tc.Dialer = dialer
	if c.Transport.ConnectTimeout > 0 {
		tc.ConnectTimeout = c.Transport.ConnectTimeout
	}
	tc.WriteTimeout = c.Transport.WriteTimeout
	tc.ReadTimeout = c.Transport.ReadTimeout
	tc.Logger = logger
	tc.ProtocolLogger = plog
	return tc, nil
}

// DiscoveryOptions builds the discovery configuration.
func (c Config) DiscoveryOptions(logger *slog.Logger) discovery.Config {
	sood := discovery.DefaultSOODConfig()
	if c.Discovery.ServiceID != "" {
		sood.ServiceID = c.Discovery.ServiceID
	}
	if c.Discovery.Interval > 0 {
		sood.Interval = c.Discovery.Interval
	}
	sood.Interface = c.Discovery.Interface

	return discovery.Config{
		Mode: c.Discovery.Mode,
		SOOD: sood,
		MDNS: discovery.MDNSConfig{
			ServiceType: c.Discovery.ServiceType,
			Interface:   c.Discovery.Interface,
		},
		Logger: logger,
	}
}
