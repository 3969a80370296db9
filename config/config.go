package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. WECHAT_OAUTH_APP_ID.
const EnvPrefix = "WECHAT_OAUTH"

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config represents the service configuration
type Config struct {
	AppID       string        `json:"app_id" mapstructure:"app_id"`
	AppSecret   string        `json:"app_secret" mapstructure:"app_secret"`
	MiniProgram bool          `json:"mini_program" mapstructure:"mini_program"`
	APIBaseURL  string        `json:"api_base_url" mapstructure:"api_base_url"`
	HTTPTimeout time.Duration `json:"http_timeout" mapstructure:"http_timeout"`

	// Store selects the credential backend: memory, mongo, redis or sqlite.
	Store         string        `json:"store" mapstructure:"store"`
	MongoURI      string        `json:"mongo_uri" mapstructure:"mongo_uri"`
	MongoDatabase string        `json:"mongo_database" mapstructure:"mongo_database"`
	RedisAddr     string        `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `json:"redis_db" mapstructure:"redis_db"`
	TokenTTL      time.Duration `json:"token_ttl" mapstructure:"token_ttl"`
	SQLitePath    string        `json:"sqlite_path" mapstructure:"sqlite_path"`
	// StoreKey is a base64 32-byte key; when set, redis and sqlite values
	// are sealed at rest.
	StoreKey string `json:"store_key" mapstructure:"store_key"`

	SessionSecret string        `json:"session_secret" mapstructure:"session_secret"`
	SessionTTL    time.Duration `json:"session_ttl" mapstructure:"session_ttl"`
	ListenAddr    string        `json:"listen_addr" mapstructure:"listen_addr"`
	CallbackPath  string        `json:"callback_path" mapstructure:"callback_path"`
	LogLevel      string        `json:"log_level" mapstructure:"log_level"`
}

// SetDefaults registers the default of every key on v. Keys must be known to
// viper for AutomaticEnv to reach them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_id", "")
	v.SetDefault("app_secret", "")
	v.SetDefault("mini_program", false)
	v.SetDefault("api_base_url", "https://api.weixin.qq.com")
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("store", StoreMemory)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "wechat_oauth")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("token_ttl", 30*24*time.Hour)
	v.SetDefault("sqlite_path", "wechat-oauth.db")
	v.SetDefault("store_key", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("session_ttl", 7*24*time.Hour)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("callback_path", "/oauth/callback")
	v.SetDefault("log_level", "info")
}

// Load reads configuration from the optional file at path and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadViper(viper.New(), path)
}

// LoadViper is Load on a caller-supplied viper instance, so command line
// flags bound to it take part.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	var errs []error
	if c.AppID == "" {
		errs = append(errs, errors.New("app_id is required"))
	}
	if c.AppSecret == "" {
		errs = append(errs, errors.New("app_secret is required"))
	}
	switch c.Store {
	case StoreMemory, StoreMongo, StoreRedis, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.StoreKey != "" {
		if _, err := c.StoreKeyBytes(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, errors.New("http_timeout must not be negative"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		errs = append(errs, errors.New("callback_path must start with /"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StoreKeyBytes decodes StoreKey. It returns nil when no key is configured.
func (c *Config) StoreKeyBytes() ([]byte, error) {
	if c.StoreKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("store_key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("store_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
