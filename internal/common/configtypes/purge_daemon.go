package configtypes

import (
	"fmt"
	"net/url"
	"time"

	"github.com/edgecomet/cfpurge/pkg/types"
)

// Option store backends
const (
	OptionBackendMemory = "memory"
	OptionBackendRedis  = "redis"
	OptionBackendMySQL  = "mysql"
)

// Front page display modes (WordPress show_on_front option)
const (
	ShowOnFrontPosts = "posts"
	ShowOnFrontPage  = "page"
)

// DefaultProviderBaseURL is the Cloudflare v4 REST API prefix
const DefaultProviderBaseURL = "https://api.cloudflare.com/client/v4/"

// PurgeDaemonConfig is the root configuration for the purge-daemon service
type PurgeDaemonConfig struct {
	DaemonID string            `yaml:"daemon_id"` // Unique identifier for this daemon instance
	Site     SiteConfig        `yaml:"site"`      // Site permalink settings used by the URL collector
	Provider ProviderConfig    `yaml:"provider"`  // Cloudflare API settings
	Options  OptionStoreConfig `yaml:"options"`   // Host option store backend
	HTTPApi  PurgeHTTPApi      `yaml:"http_api"`  // Inbound hook API
	Admin    AdminConfig       `yaml:"admin"`     // Manual purge link settings
	Coalesce CoalesceConfig    `yaml:"coalesce"`  // Optional batching of selective purges
	Audit    AuditConfig       `yaml:"audit"`     // Purge audit events
	Logging  LogConfig         `yaml:"logging"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// SiteConfig describes how the host builds archive, feed and author links
type SiteConfig struct {
	HomeURL          string   `yaml:"home_url"`
	CategoryBase     string   `yaml:"category_base"`      // default "category"
	TagBase          string   `yaml:"tag_base"`           // default "tag"
	AuthorBase       string   `yaml:"author_base"`        // default "author"
	ArchivePostTypes []string `yaml:"archive_post_types"` // post types registered with has_archive
	ShowOnFront      string   `yaml:"show_on_front"`      // "posts" or "page"
	PageForPostsURL  string   `yaml:"page_for_posts_url"` // permalink of the static posts page
}

// ProviderConfig configures the Cloudflare API client
type ProviderConfig struct {
	BaseURL   string          `yaml:"base_url"`
	Timeout   types.Duration  `yaml:"timeout"` // 0 = transport default (no timeout)
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a client-side token bucket in front of the provider API
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// OptionStoreConfig selects where credentials and the cached zone id live
type OptionStoreConfig struct {
	Backend string            `yaml:"backend"` // memory, redis, mysql
	Values  map[string]string `yaml:"values"`  // seed values for the memory backend
	// Overrides take precedence over any backend value; filled from the environment
	Overrides map[string]string `yaml:"-"`
	Redis     OptionRedisConfig `yaml:"redis"`
	MySQL     OptionMySQLConfig `yaml:"mysql"`
}

// OptionRedisConfig stores options as Redis strings under KeyPrefix
type OptionRedisConfig struct {
	RedisConfig `yaml:",inline"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// OptionMySQLConfig reads options from a WordPress wp_options table
type OptionMySQLConfig struct {
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix"` // default "wp_"
}

// PurgeHTTPApi defines the inbound hook API
type PurgeHTTPApi struct {
	Enabled        bool           `yaml:"enabled"`
	Listen         string         `yaml:"listen"`
	RequestTimeout types.Duration `yaml:"request_timeout"`
	AuthKey        string         `yaml:"auth_key"` // X-Internal-Auth value expected on hook routes
}

// AdminConfig configures the one-click purge link
type AdminConfig struct {
	NonceSecret   string         `yaml:"nonce_secret"`
	NonceLifetime types.Duration `yaml:"nonce_lifetime"` // default 1d
	PublicURL     string         `yaml:"public_url"`     // base URL the admin link points at
}

// CoalesceConfig enables the coalescing queue for selective purges
type CoalesceConfig struct {
	Enabled bool           `yaml:"enabled"`
	Window  types.Duration `yaml:"window"`
}

// AuditConfig configures purge audit sinks
type AuditConfig struct {
	File       AuditFileConfig       `yaml:"file"`
	ClickHouse AuditClickHouseConfig `yaml:"clickhouse"`
}

// AuditFileConfig writes one line per purge to a rotated file
type AuditFileConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Template string         `yaml:"template"`
	Rotation RotationConfig `yaml:"rotation"`
}

// AuditClickHouseConfig ships purge events to a ClickHouse table
type AuditClickHouseConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Addr          []string       `yaml:"addr"`
	Database      string         `yaml:"database"`
	Username      string         `yaml:"username"`
	Password      string         `yaml:"password"`
	Table         string         `yaml:"table"`
	BatchSize     int            `yaml:"batch_size"`
	FlushInterval types.Duration `yaml:"flush_interval"`
}

// Validate validates purge daemon configuration
func (c *PurgeDaemonConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.DaemonID == "" {
		return fmt.Errorf("daemon_id must be specified")
	}

	if c.Site.HomeURL == "" {
		return fmt.Errorf("site.home_url must be specified")
	}
	home, err := url.Parse(c.Site.HomeURL)
	if err != nil || home.Scheme == "" || home.Host == "" {
		return fmt.Errorf("site.home_url must be an absolute URL, got '%s'", c.Site.HomeURL)
	}
	switch c.Site.ShowOnFront {
	case "", ShowOnFrontPosts:
	case ShowOnFrontPage:
		if c.Site.PageForPostsURL == "" {
			return fmt.Errorf("site.page_for_posts_url must be specified when show_on_front is 'page'")
		}
	default:
		return fmt.Errorf("site.show_on_front must be 'posts' or 'page', got '%s'", c.Site.ShowOnFront)
	}

	if c.Provider.BaseURL != "" {
		base, err := url.Parse(c.Provider.BaseURL)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return fmt.Errorf("provider.base_url must be an absolute URL, got '%s'", c.Provider.BaseURL)
		}
	}
	if time.Duration(c.Provider.Timeout) < 0 {
		return fmt.Errorf("provider.timeout must be >= 0")
	}
	if c.Provider.RateLimit.Enabled {
		if c.Provider.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("provider.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if c.Provider.RateLimit.Burst < 1 {
			return fmt.Errorf("provider.rate_limit.burst must be >= 1 when enabled, got %d", c.Provider.RateLimit.Burst)
		}
	}

	switch c.Options.Backend {
	case "", OptionBackendMemory:
	case OptionBackendRedis:
		if c.Options.Redis.Addr == "" {
			return fmt.Errorf("options.redis.addr must be specified for the redis backend")
		}
		if c.Options.Redis.DB < 0 {
			return fmt.Errorf("options.redis.db must be >= 0, got %d", c.Options.Redis.DB)
		}
	case OptionBackendMySQL:
		if c.Options.MySQL.DSN == "" {
			return fmt.Errorf("options.mysql.dsn must be specified for the mysql backend")
		}
	default:
		return fmt.Errorf("options.backend must be one of: memory, redis, mysql, got '%s'", c.Options.Backend)
	}

	var httpApiPort int
	if c.HTTPApi.Enabled {
		port, err := validateListen("http_api.listen", c.HTTPApi.Listen)
		if err != nil {
			return err
		}
		httpApiPort = port

		if time.Duration(c.HTTPApi.RequestTimeout) <= 0 {
			return fmt.Errorf("http_api.request_timeout must be > 0 when http_api is enabled")
		}
		if c.HTTPApi.AuthKey == "" {
			return fmt.Errorf("http_api.auth_key must be specified when http_api is enabled")
		}
		if c.Admin.NonceSecret == "" {
			return fmt.Errorf("admin.nonce_secret must be specified when http_api is enabled")
		}
	}
	if time.Duration(c.Admin.NonceLifetime) < 0 {
		return fmt.Errorf("admin.nonce_lifetime must be >= 0")
	}

	if c.Coalesce.Enabled && time.Duration(c.Coalesce.Window) <= 0 {
		return fmt.Errorf("coalesce.window must be > 0 when coalescing is enabled")
	}

	if c.Audit.File.Enabled && c.Audit.File.Path == "" {
		return fmt.Errorf("audit.file.path must be specified when file audit is enabled")
	}
	if c.Audit.ClickHouse.Enabled {
		if len(c.Audit.ClickHouse.Addr) == 0 {
			return fmt.Errorf("audit.clickhouse.addr must be specified when clickhouse audit is enabled")
		}
		if c.Audit.ClickHouse.BatchSize < 0 {
			return fmt.Errorf("audit.clickhouse.batch_size must be >= 0, got %d", c.Audit.ClickHouse.BatchSize)
		}
	}

	if c.Metrics.Enabled {
		metricsPort, err := validateListen("metrics.listen", c.Metrics.Listen)
		if err != nil {
			return err
		}
		if c.HTTPApi.Enabled && metricsPort == httpApiPort {
			return fmt.Errorf("metrics.listen port (%d) must differ from http_api.listen port (%d) when both enabled", metricsPort, httpApiPort)
		}
	}

	return c.Logging.Validate()
}

// Validate checks log level, formats and rotation settings
func (l *LogConfig) Validate() error {
	validLogLevels := map[string]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	if l.Level != "" && !validLogLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got '%s'", l.Level)
	}

	if l.Console.Enabled && l.Console.Format != "" &&
		l.Console.Format != LogFormatJSON && l.Console.Format != LogFormatConsole {
		return fmt.Errorf("logging.console.format must be 'json' or 'console', got '%s'", l.Console.Format)
	}

	if l.File.Enabled {
		if l.File.Path == "" {
			return fmt.Errorf("logging.file.path must be specified when file logging is enabled")
		}
		if l.File.Format != "" && l.File.Format != LogFormatJSON && l.File.Format != LogFormatText {
			return fmt.Errorf("logging.file.format must be 'json' or 'text', got '%s'", l.File.Format)
		}
		if l.File.Rotation.MaxSize < 0 || l.File.Rotation.MaxAge < 0 || l.File.Rotation.MaxBackups < 0 {
			return fmt.Errorf("logging.file.rotation values must be >= 0")
		}
	}

	return nil
}
