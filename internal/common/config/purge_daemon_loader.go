package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
	"github.com/edgecomet/cfpurge/internal/common/yamlutil"
	"github.com/edgecomet/cfpurge/pkg/types"
)

// EnvPrefix is the prefix of environment overrides, e.g. CFPURGE_API_KEY
const EnvPrefix = "cfpurge"

const (
	defaultNonceLifetime = 24 * time.Hour
	defaultMetricsPath   = "/metrics"
	defaultMySQLPrefix   = "wp_"
	defaultRedisPrefix   = "cfpurge:option:"
	defaultAuditTable    = "purge_events"
)

// EnvOverrides holds secrets that may be supplied through the environment
// instead of the YAML file or the option store.
type EnvOverrides struct {
	APIEmail        string `envconfig:"API_EMAIL"`
	APIKey          string `envconfig:"API_KEY"`
	ZoneName        string `envconfig:"ZONE_NAME"`
	InternalAuthKey string `envconfig:"INTERNAL_AUTH_KEY"`
	NonceSecret     string `envconfig:"NONCE_SECRET"`
	MySQLDSN        string `envconfig:"MYSQL_DSN"`
	RedisPassword   string `envconfig:"REDIS_PASSWORD"`
}

// applyPurgeDaemonDefaults applies default values to daemon configuration
func applyPurgeDaemonDefaults(config *configtypes.PurgeDaemonConfig) {
	if !config.Logging.Console.Enabled && !config.Logging.File.Enabled {
		config.Logging.Console.Enabled = true
	}
	if config.Logging.Console.Format == "" {
		config.Logging.Console.Format = configtypes.LogFormatConsole
	}
	if config.Logging.File.Format == "" {
		config.Logging.File.Format = configtypes.LogFormatText
	}

	if config.Site.CategoryBase == "" {
		config.Site.CategoryBase = "category"
	}
	if config.Site.TagBase == "" {
		config.Site.TagBase = "tag"
	}
	if config.Site.AuthorBase == "" {
		config.Site.AuthorBase = "author"
	}
	if config.Site.ShowOnFront == "" {
		config.Site.ShowOnFront = configtypes.ShowOnFrontPosts
	}

	if config.Provider.BaseURL == "" {
		config.Provider.BaseURL = configtypes.DefaultProviderBaseURL
	}

	if config.Options.Backend == "" {
		config.Options.Backend = configtypes.OptionBackendMemory
	}
	if config.Options.MySQL.TablePrefix == "" {
		config.Options.MySQL.TablePrefix = defaultMySQLPrefix
	}
	if config.Options.Redis.KeyPrefix == "" {
		config.Options.Redis.KeyPrefix = defaultRedisPrefix
	}

	if config.Admin.NonceLifetime == 0 {
		config.Admin.NonceLifetime = types.Duration(defaultNonceLifetime)
	}
	if config.Admin.PublicURL == "" {
		config.Admin.PublicURL = config.Site.HomeURL
	}

	if config.Audit.ClickHouse.Table == "" {
		config.Audit.ClickHouse.Table = defaultAuditTable
	}
	if config.Audit.ClickHouse.BatchSize == 0 {
		config.Audit.ClickHouse.BatchSize = 500
	}
	if config.Audit.ClickHouse.FlushInterval == 0 {
		config.Audit.ClickHouse.FlushInterval = types.Duration(5 * time.Second)
	}

	if config.Metrics.Path == "" {
		config.Metrics.Path = defaultMetricsPath
	}
}

// applyEnvOverrides copies non-empty environment values over the file configuration.
// Provider credentials and the zone name become option store overrides.
func applyEnvOverrides(config *configtypes.PurgeDaemonConfig, env EnvOverrides) {
	if env.InternalAuthKey != "" {
		config.HTTPApi.AuthKey = env.InternalAuthKey
	}
	if env.NonceSecret != "" {
		config.Admin.NonceSecret = env.NonceSecret
	}
	if env.MySQLDSN != "" {
		config.Options.MySQL.DSN = env.MySQLDSN
	}
	if env.RedisPassword != "" {
		config.Options.Redis.Password = env.RedisPassword
	}

	options := map[string]string{
		configtypes.OptionAPIEmail: env.APIEmail,
		configtypes.OptionAPIKey:   env.APIKey,
		configtypes.OptionZoneName: env.ZoneName,
	}
	for name, value := range options {
		if value == "" {
			continue
		}
		if config.Options.Overrides == nil {
			config.Options.Overrides = make(map[string]string)
		}
		config.Options.Overrides[name] = value
	}
}

// LoadPurgeDaemonConfig loads purge-daemon configuration from a YAML file
// and applies CFPURGE_* environment overrides.
func LoadPurgeDaemonConfig(path string, logger *zap.Logger) (*configtypes.PurgeDaemonConfig, error) {
	logger.Info("Loading purge-daemon configuration", zap.String("path", path))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config configtypes.PurgeDaemonConfig
	if err := yamlutil.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	applyEnvOverrides(&config, env)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	applyPurgeDaemonDefaults(&config)

	logger.Info("Purge-daemon configuration loaded successfully",
		zap.String("daemon_id", config.DaemonID),
		zap.String("home_url", config.Site.HomeURL),
		zap.String("option_backend", config.Options.Backend),
		zap.Int("option_overrides", len(config.Options.Overrides)))

	return &config, nil
}
