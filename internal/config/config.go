package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Gate    GateConfig    `mapstructure:"gate"`
	Quota   QuotaConfig   `mapstructure:"quota"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// ServerConfig defines gateway ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"` // bolt database path
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GateConfig defines the content gate: password unlock plus the two
// session bounds. A session is valid only while both the absolute
// lifetime and the idle window have headroom.
type GateConfig struct {
	PasswordHash string `mapstructure:"password_hash"` // bcrypt hash of the gate password
	TokenSecret  string `mapstructure:"token_secret"`  // HMAC secret for access tokens
	MaxSession   string `mapstructure:"max_session"`   // absolute session lifetime
	IdleTimeout  string `mapstructure:"idle_timeout"`  // inactivity lifetime
}

// QuotaConfig defines the daily play allowance
type QuotaConfig struct {
	MaxPlaysPerDay  int    `mapstructure:"max_plays_per_day"`
	DailyResetTime  string `mapstructure:"daily_reset_time"` // HH:MM local time
	IntegritySecret string `mapstructure:"integrity_secret"` // HMAC secret for the persisted counter
}

// CacheConfig defines media cache behavior
type CacheConfig struct {
	TTL            string `mapstructure:"ttl"`
	Obfuscate      bool   `mapstructure:"obfuscate"`
	ObfuscationKey string `mapstructure:"obfuscation_key"`
	BaseURL        string `mapstructure:"base_url"`      // origin relative media paths resolve against
	FetchTimeout   string `mapstructure:"fetch_timeout"` // deadline for one upstream media fetch
	HotEntries     int    `mapstructure:"hot_entries"`   // in-memory LRU size for revealed payloads
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("MEDIAGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	setDefaults(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.port", 8632)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/mediagate/mediagate.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 5)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Gate defaults
	v.SetDefault("gate.max_session", "2h")
	v.SetDefault("gate.idle_timeout", "15m")

	// Quota defaults
	v.SetDefault("quota.max_plays_per_day", 3)
	v.SetDefault("quota.daily_reset_time", "00:00")

	// Cache defaults
	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("cache.obfuscate", true)
	v.SetDefault("cache.fetch_timeout", "30s")
	v.SetDefault("cache.hot_entries", 32)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "", "bolt":
		cfg.Storage.Type = "bolt"
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be bolt or redis)", cfg.Storage.Type)
	}

	if cfg.Gate.PasswordHash == "" {
		return fmt.Errorf("gate.password_hash is required (generate one with 'mediagate passwd')")
	}
	if cfg.Gate.TokenSecret == "" {
		return fmt.Errorf("gate.token_secret is required")
	}
	if _, err := time.ParseDuration(cfg.Gate.MaxSession); err != nil {
		return fmt.Errorf("invalid gate.max_session: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Gate.IdleTimeout); err != nil {
		return fmt.Errorf("invalid gate.idle_timeout: %w", err)
	}

	if cfg.Quota.MaxPlaysPerDay <= 0 {
		return fmt.Errorf("quota.max_plays_per_day must be positive: %d", cfg.Quota.MaxPlaysPerDay)
	}
	if err := validateResetTime(cfg.Quota.DailyResetTime); err != nil {
		return err
	}
	if cfg.Quota.IntegritySecret == "" {
		return fmt.Errorf("quota.integrity_secret is required")
	}

	if _, err := time.ParseDuration(cfg.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache.ttl: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Cache.FetchTimeout); err != nil {
		return fmt.Errorf("invalid cache.fetch_timeout: %w", err)
	}
	if cfg.Cache.HotEntries <= 0 {
		return fmt.Errorf("cache.hot_entries must be positive: %d", cfg.Cache.HotEntries)
	}

	return nil
}

// validateResetTime checks an HH:MM daily reset time.
func validateResetTime(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("invalid quota.daily_reset_time %q (expected HH:MM): %w", s, err)
	}
	return nil
}
