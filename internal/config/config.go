// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Browsertrix  BrowsertrixConfig  `mapstructure:"browsertrix"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Storage      StorageConfig      `mapstructure:"storage"`
	DB           DBConfig           `mapstructure:"db"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BrowsertrixConfig locates the remote crawl service.
type BrowsertrixConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	LoginPath      string `mapstructure:"login_path"`
	OrgID          string `mapstructure:"org_id"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OrchestratorConfig governs the saga poll loop.
type OrchestratorConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	MaxPollAttempts     int `mapstructure:"max_poll_attempts"`
}

// StorageConfig sets the artifact bucket and content type.
type StorageConfig struct {
	Provider         string `mapstructure:"provider"`
	GCSBucket        string `mapstructure:"gcs_bucket"`
	Prefix           string `mapstructure:"prefix"`
	ContentType      string `mapstructure:"content_type"`
	SignedURLTTLMins int    `mapstructure:"signed_url_ttl_minutes"`
}

// DBConfig controls access to the catalog database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// NotifyConfig selects and configures the notification channel.
type NotifyConfig struct {
	Provider string         `mapstructure:"provider"`
	Postmark PostmarkConfig `mapstructure:"postmark"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// PostmarkConfig holds outbound email parameters.
type PostmarkConfig struct {
	APIBase     string `mapstructure:"api_base"`
	ServerToken string `mapstructure:"server_token"`
	Sender      string `mapstructure:"sender"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("browsertrix.login_path", "/auth/jwt/login")
	v.SetDefault("browsertrix.timeout_seconds", 60)
	v.SetDefault("orchestrator.poll_interval_seconds", 60)
	v.SetDefault("orchestrator.max_poll_attempts", 30)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "wacz")
	v.SetDefault("storage.content_type", "application/wacz")
	v.SetDefault("storage.signed_url_ttl_minutes", 60)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.table", "archives")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.postmark.api_base", "https://api.postmarkapp.com")
	v.SetDefault("logging.development", true)
}

// Validate rejects configurations that cannot start cleanly.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.enabled requires auth.api_key")
	}
	if c.Orchestrator.PollIntervalSeconds <= 0 {
		return fmt.Errorf("orchestrator.poll_interval_seconds must be positive")
	}
	if c.Orchestrator.MaxPollAttempts <= 0 {
		return fmt.Errorf("orchestrator.max_poll_attempts must be positive")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.provider is gcs but storage.gcs_bucket is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.provider is postgres but db.dsn is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db provider %q", c.DB.Provider)
	}
	switch c.Notify.Provider {
	case "postmark":
		if c.Notify.Postmark.ServerToken == "" || c.Notify.Postmark.Sender == "" {
			return fmt.Errorf("notify.provider is postmark but server_token or sender is not set")
		}
	case "pubsub":
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicName == "" {
			return fmt.Errorf("notify.provider is pubsub but project_id or topic_name is not set")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown notify provider %q", c.Notify.Provider)
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Orchestrator.PollIntervalSeconds) * time.Second
}

// SignedURLTTL returns the retrieval URL lifetime as a duration.
func (c Config) SignedURLTTL() time.Duration {
	return time.Duration(c.Storage.SignedURLTTLMins) * time.Minute
}

// BrowsertrixTimeout returns the crawl service HTTP timeout.
func (c Config) BrowsertrixTimeout() time.Duration {
	return time.Duration(c.Browsertrix.TimeoutSeconds) * time.Second
}
