package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all client configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Channel ChannelConfig `mapstructure:"channel"`
	UI      UIConfig      `mapstructure:"ui"`
	Keyring KeyringConfig `mapstructure:"keyring"`
}

type APIConfig struct {
	// BaseURL is the backend origin; REST paths (/api/..., /auth/...)
	// are appended to it.
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ChannelConfig struct {
	// URL is the websocket handshake endpoint.
	URL string `mapstructure:"url"`
	// ReconnectDelay is the fixed wait between reconnect attempts.
	// Deliberately a static delay, not exponential backoff.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type UIConfig struct {
	ToastTTL  time.Duration `mapstructure:"toast_ttl"`
	MaxToasts int           `mapstructure:"max_toasts"`
}

type KeyringConfig struct {
	ServiceName string `mapstructure:"service_name"`
	// FileDir is where the file-backend keyring stores credentials when no
	// OS keychain is available.
	FileDir string `mapstructure:"file_dir"`
}

// Load reads configuration from environment variables and config files.
// Environment variables override file values. Prefix: RECY_NOTIFY_
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("channel.url", "ws://localhost:8080/ws")
	v.SetDefault("channel.reconnect_delay", 5*time.Second)
	v.SetDefault("ui.toast_ttl", 5*time.Second)
	v.SetDefault("ui.max_toasts", 5)
	v.SetDefault("keyring.service_name", "recyconnect-notify")
	v.SetDefault("keyring.file_dir", "~/.config/recyconnect-notify/credentials")

	// Environment variables (e.g. API_BASE_URL -> api.base_url)
	v.SetEnvPrefix("RECY_NOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also support the plain names used in docker-compose files
	v.BindEnv("api.base_url", "RECYCONNECT_API_URL")
	v.BindEnv("channel.url", "RECYCONNECT_WS_URL")

	// Try loading config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/recyconnect-notify")
	_ = v.ReadInConfig() // Not required

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
