package cnwdevice

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage backends understood by StorageConfig.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageRedis    = "redis"
)

// Config is the environment-driven configuration for hosts that run a
// device session outside a browser, such as the cnw-device CLI.
type Config struct {
	RegistryURL string        `yaml:"registry_url" env:"CNW_DEVICE_REGISTRY_URL" env-required:"true"`
	APIKey      string        `yaml:"api_key" env:"CNW_DEVICE_API_KEY"`
	Timeout     time.Duration `yaml:"timeout" env:"CNW_DEVICE_TIMEOUT" env-default:"10s"`
	UserAgent   string        `yaml:"user_agent" env:"CNW_DEVICE_USER_AGENT"`
	Screen      string        `yaml:"screen" env:"CNW_DEVICE_SCREEN"`

	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval" env:"CNW_DEVICE_HEARTBEAT_INTERVAL" env-default:"3m"`
	ValidityInterval    time.Duration `yaml:"validity_interval" env:"CNW_DEVICE_VALIDITY_INTERVAL" env-default:"15s"`
	UserRefreshInterval time.Duration `yaml:"user_refresh_interval" env:"CNW_DEVICE_USER_REFRESH_INTERVAL" env-default:"30s"`

	LogLevel string `yaml:"log_level" env:"CNW_DEVICE_LOG_LEVEL" env-default:"info"`

	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig selects and addresses the durable store.
type StorageConfig struct {
	Backend   string `yaml:"backend" env:"CNW_DEVICE_STORAGE" env-default:"file"`
	Namespace string `yaml:"namespace" env:"CNW_DEVICE_STORAGE_NAMESPACE" env-default:"default"`

	Path string `yaml:"path" env:"CNW_DEVICE_STORAGE_PATH" env-default:"cnw-device.json"`

	PostgresURL string `yaml:"postgres_url" env:"CNW_DEVICE_POSTGRES_URL"`

	MongoURI      string `yaml:"mongo_uri" env:"CNW_DEVICE_MONGO_URI"`
	MongoDatabase string `yaml:"mongo_database" env:"CNW_DEVICE_MONGO_DATABASE" env-default:"cnw"`

	RedisAddr     string        `yaml:"redis_addr" env:"CNW_DEVICE_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" env:"CNW_DEVICE_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"CNW_DEVICE_REDIS_DB" env-default:"0"`
	RedisTTL      time.Duration `yaml:"redis_ttl" env:"CNW_DEVICE_REDIS_TTL" env-default:"0s"`
}

// LoadConfig reads configuration from the environment. If path is non-empty
// the file is read first (YAML, JSON, TOML or .env by extension) and the
// environment overrides it.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	var errs []error
	if c.RegistryURL == "" {
		errs = append(errs, errors.New("registry url is required"))
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("file storage needs a path"))
		}
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("postgres storage needs CNW_DEVICE_POSTGRES_URL"))
		}
	case StorageMongo:
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("mongo storage needs CNW_DEVICE_MONGO_URI"))
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("redis storage needs CNW_DEVICE_REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	for name, d := range map[string]time.Duration{
		"heartbeat interval":    c.HeartbeatInterval,
		"validity interval":     c.ValidityInterval,
		"user refresh interval": c.UserRefreshInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel parses LogLevel, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ClientOptions returns the RegistryClient options the config describes.
func (c *Config) ClientOptions(logger *slog.Logger) []ClientOption {
	opts := []ClientOption{WithTimeout(c.Timeout), WithClientLogger(logger)}
	if c.APIKey != "" {
		opts = append(opts, WithAPIKey(c.APIKey))
	}
	if c.UserAgent != "" {
		opts = append(opts, WithUserAgent(c.UserAgent))
	}
	return opts
}

// ControllerOptions returns the Controller options the config describes.
func (c *Config) ControllerOptions(logger *slog.Logger) []ControllerOption {
	return []ControllerOption{
		WithHeartbeatInterval(c.HeartbeatInterval),
		WithValidityInterval(c.ValidityInterval),
		WithUserRefreshInterval(c.UserRefreshInterval),
		WithLogger(logger),
	}
}
