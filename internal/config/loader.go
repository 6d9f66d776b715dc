package config

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/persistence"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/session"
	"github.com/corelink/corelink-go/pkg/transport"
)

// SetDefaults installs every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("core.host", "")
	v.SetDefault("core.port", 0)

	v.SetDefault("transport.kind", transport.KindTCP)
	v.SetDefault("transport.connect_timeout", "10s")
	v.SetDefault("transport.write_timeout", "10s")
	v.SetDefault("transport.read_timeout", "0s")
	v.SetDefault("transport.max_message_size", transport.DefaultMaxMessageSize)

	v.SetDefault("discovery.mode", discovery.ModeSOOD)
	v.SetDefault("discovery.interval", discovery.DefaultQueryInterval.String())
	v.SetDefault("discovery.interface", "")
	v.SetDefault("discovery.service_id", discovery.DefaultServiceID)
	v.SetDefault("discovery.service_type", discovery.ServiceTypeCore)

	v.SetDefault("keystore.backend", persistence.BackendFile)

	v.SetDefault("session.request_timeout", session.DefaultRequestTimeout.String())
	v.SetDefault("session.queue_item_count", session.DefaultQueueItemCount)

	id := registration.DefaultIdentity()
	v.SetDefault("extension.extension_id", id.ExtensionID)
	v.SetDefault("extension.display_name", id.DisplayName)
	v.SetDefault("extension.display_version", id.DisplayVersion)
	v.SetDefault("extension.publisher", id.Publisher)
	v.SetDefault("extension.email", id.Email)
	v.SetDefault("extension.website", id.Website)
	v.SetDefault("extension.required_services", id.RequiredServices)
	v.SetDefault("extension.optional_services", id.OptionalServices)
	v.SetDefault("extension.provided_services", id.ProvidedServices)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "auto")
	v.SetDefault("observability.metrics_addr", "")
	v.SetDefault("observability.protocol_log", "")
}

// BindGlobalFlags registers the flags shared by every command and binds
// them to v.
func BindGlobalFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()

	f.String("config", "", "config file (default $data_dir/config.yaml)")
	f.String("data-dir", "", "data directory (default ~/.corelink)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (auto, text, json, pretty)")
	f.String("keystore", "", "token store backend (file, badger, memory)")
	f.String("transport", "", "transport kind (tcp, websocket)")
	f.String("discovery", "", "discovery mode (sood, mdns, both)")

	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
	_ = v.BindPFlag("keystore.backend", f.Lookup("keystore"))
	_ = v.BindPFlag("transport.kind", f.Lookup("transport"))
	_ = v.BindPFlag("discovery.mode", f.Lookup("discovery"))
}

// connectFlagKeys maps session flags to configuration keys.
var connectFlagKeys = map[string]string{
	"host":            "core.host",
	"port":            "core.port",
	"request-timeout": "session.request_timeout",
	"protocol-log":    "observability.protocol_log",
	"metrics-addr":    "observability.metrics_addr",
}

// AddConnectFlags registers the flags of commands that open a session.
// They are bound to keys by BindFlags when the command runs.
func AddConnectFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("host", "", "core host (skips discovery)")
	f.Int("port", 0, "core port")
	f.Duration("request-timeout", 0, "request timeout")
	f.String("protocol-log", "", "write a protocol capture (.clog) to this file")
}

// BindFlags binds the session flags present in fs to v. Several commands
// define the same flags, so binding happens for the executing command only.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range connectFlagKeys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// Load reads the configuration. An explicitly named config file must exist;
// otherwise config.yaml is looked up in the data directory and the working
// directory.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
