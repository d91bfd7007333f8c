// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Sources SourcesConfig `mapstructure:"sources"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HTTPConfig configures the outbound upstream client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	ProxyURL       string `mapstructure:"proxy_url"`
}

// CacheConfig selects and configures the resolution cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend        string `mapstructure:"backend"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	FailureTTLSecs int    `mapstructure:"failure_ttl_seconds"`
}

// SourcesConfig holds per-source credentials and tunables.
type SourcesConfig struct {
	YoutubeAPIKey     string   `mapstructure:"youtube_api_key"`
	TwitterAuth       string   `mapstructure:"twitter_auth"`
	PixivRefreshToken string   `mapstructure:"pixiv_refresh_token"`
	PixivBadTags      []string `mapstructure:"pixiv_bad_tags"`
	MelonHost         string   `mapstructure:"melon_host"`
	BiliSessData      string   `mapstructure:"bili_sessdata"`
	Timezone          string   `mapstructure:"timezone"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.failure_ttl_seconds", 60)
	v.SetDefault("sources.timezone", "Asia/Shanghai")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr must be set when cache.backend is redis")
	}
	if c.Cache.FailureTTLSecs <= 0 {
		return fmt.Errorf("cache.failure_ttl_seconds must be > 0")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// FailureTTL converts the failure cache TTL config into a duration.
func (c Config) FailureTTL() time.Duration {
	return time.Duration(c.Cache.FailureTTLSecs) * time.Second
}
