package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string       `mapstructure:"mode"`
	LogLevel string       `mapstructure:"log_level"`
	Relay    RelayConfig  `mapstructure:"relay"`
	Client   ClientConfig `mapstructure:"client"`
}

type RelayConfig struct {
	Port               int           `mapstructure:"port"`
	Secret             string        `mapstructure:"secret"`
	SecureCookie       bool          `mapstructure:"secure_cookie"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	RateLimit          int           `mapstructure:"rate_limit"`
	RateWindow         time.Duration `mapstructure:"rate_window"`
	BackpressurePolicy string        `mapstructure:"backpressure_policy"`
}

type ClientConfig struct {
	RelayURL               string        `mapstructure:"relay_url"`
	Identity               string        `mapstructure:"identity"`
	Input                  string        `mapstructure:"input"`
	Cooldown               time.Duration `mapstructure:"cooldown"`
	ICEServers             []string      `mapstructure:"ice_servers"`
	ICEDisconnectedTimeout time.Duration `mapstructure:"ice_disconnected_timeout"`
	ICEFailedTimeout       time.Duration `mapstructure:"ice_failed_timeout"`
	ICEKeepAlive           time.Duration `mapstructure:"ice_keepalive"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"config":    "",
	"mode":      "mode",
	"log-level": "log_level",
	"port":      "relay.port",
	"secret":    "relay.secret",
	"policy":    "relay.backpressure_policy",
	"relay":     "client.relay_url",
	"id":        "client.identity",
	"input":     "client.input",
	"cooldown":  "client.cooldown",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")

	v.SetDefault("relay.port", 8080)
	v.SetDefault("relay.secret", "voicecall-dev-secret")
	v.SetDefault("relay.secure_cookie", false)
	v.SetDefault("relay.read_limit", 32768)
	v.SetDefault("relay.ping_period", "54s")
	v.SetDefault("relay.write_timeout", "5s")
	v.SetDefault("relay.send_buffer", 32)
	v.SetDefault("relay.rate_limit", 50)
	v.SetDefault("relay.rate_window", "1s")
	v.SetDefault("relay.backpressure_policy", "kick")

	v.SetDefault("client.relay_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.identity", "")
	v.SetDefault("client.input", "silence")
	v.SetDefault("client.cooldown", "2s")
	v.SetDefault("client.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("client.ice_disconnected_timeout", "30s")
	v.SetDefault("client.ice_failed_timeout", "60s")
	v.SetDefault("client.ice_keepalive", "2s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (or the file named by the
// config flag), then applies VOICECALL_* env vars and the flags that were set.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			fileName = f.Value.String()
		}
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("VOICECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || key == "" {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Relay.Port).Str("relay_url", cfg.Client.RelayURL).Msg("config ready")
	return &cfg, nil
}

// ApplyLogLevel sets the global zerolog level, falling back to info.
func (c *Config) ApplyLogLevel() {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
