// Package config loads the runtime configuration of the chat service from
// defaults, an optional config file and ROOMCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ROOMCHAT"

// Authentication modes accepted in auth.mode.
const (
	AuthModeToken = "token"
	AuthModeName  = "name"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// ServerConfig holds the transport settings including security controls.
type ServerConfig struct {
	Port            string          `mapstructure:"port"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	MaxMessageSize  int64           `mapstructure:"max_message_size"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	AutoJoin        bool            `mapstructure:"auto_join"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// AuthConfig selects the handshake mode and the token signing parameters.
type AuthConfig struct {
	Mode      string        `mapstructure:"mode"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

// RedisConfig points at the shared store used for presence, activity,
// revocations and the broadcast relay.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Relay        bool          `mapstructure:"relay"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PresenceConfig bounds the lifetime of idle presence and activity keys.
type PresenceConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Presence PresenceConfig `mapstructure:"presence"`
	Log      LogConfig      `mapstructure:"log"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: ":8080",
			AllowedOrigins: []string{
				"http://localhost:8080",
			},
			MaxMessageSize: 128 * 1024,
			RateLimit: RateLimitConfig{
				Burst:          5,
				RefillInterval: time.Second,
			},
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Mode:     AuthModeName,
			TokenTTL: 24 * time.Hour,
			Issuer:   "roomchat",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			Relay:        true,
		},
		Database: DatabaseConfig{
			DSN: "roomchat.db",
		},
		Presence: PresenceConfig{
			TTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SetDefaults registers every key of Default on v so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.max_message_size", d.Server.MaxMessageSize)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)
	v.SetDefault("server.rate_limit.refill_interval", d.Server.RateLimit.RefillInterval)
	v.SetDefault("server.auto_join", d.Server.AutoJoin)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("auth.mode", d.Auth.Mode)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.issuer", d.Auth.Issuer)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)
	v.SetDefault("redis.relay", d.Redis.Relay)

	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("presence.ttl", d.Presence.TTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration into a Config. When configFile is non-empty
// it is read first; environment variables take precedence over it.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg = Sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sanitize replaces missing or non-positive values with defaults.
func Sanitize(cfg Config) Config {
	d := Default()

	cfg.Server.Port = strings.TrimSpace(cfg.Server.Port)
	if cfg.Server.Port == "" {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.MaxMessageSize <= 0 {
		cfg.Server.MaxMessageSize = d.Server.MaxMessageSize
	}
	if cfg.Server.RateLimit.Burst <= 0 {
		cfg.Server.RateLimit.Burst = d.Server.RateLimit.Burst
	}
	if cfg.Server.RateLimit.RefillInterval <= 0 {
		cfg.Server.RateLimit.RefillInterval = d.Server.RateLimit.RefillInterval
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	cfg.Server.AllowedOrigins = parseOrigins(cfg.Server.AllowedOrigins)

	cfg.Auth.Mode = strings.ToLower(strings.TrimSpace(cfg.Auth.Mode))
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = d.Auth.Mode
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = d.Auth.TokenTTL
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		cfg.Redis.Addr = d.Redis.Addr
	}
	if cfg.Redis.DialTimeout <= 0 {
		cfg.Redis.DialTimeout = d.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout <= 0 {
		cfg.Redis.ReadTimeout = d.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout <= 0 {
		cfg.Redis.WriteTimeout = d.Redis.WriteTimeout
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		cfg.Database.DSN = d.Database.DSN
	}
	if cfg.Presence.TTL <= 0 {
		cfg.Presence.TTL = d.Presence.TTL
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
	return cfg
}

// Validate reports settings that cannot be repaired by Sanitize.
func (c Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeName:
	case AuthModeToken:
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required when auth.mode is token")
		}
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", AuthModeToken, AuthModeName, c.Auth.Mode)
	}
	return nil
}

// parseOrigins trims entries and splits comma-separated values, which is the
// shape environment variables arrive in.
func parseOrigins(origins []string) []string {
	parsed := make([]string, 0, len(origins))
	for _, entry := range origins {
		for _, part := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
	}
	return parsed
}
