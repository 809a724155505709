package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	AES      AESConfig      `mapstructure:"aes"`
	Producer ProducerConfig `mapstructure:"producer"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig configures validation of dashboard bearer tokens. Tokens are
// minted by the identity platform; this service only verifies them.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

// ProducerConfig configures HMAC authentication of the internal event
// ingest API.
type ProducerConfig struct {
	Key      string        `mapstructure:"key"` // shared HMAC key
	MaxDrift time.Duration `mapstructure:"max_drift"`
}

// DeliveryConfig tunes the dispatcher and retry scheduler.
type DeliveryConfig struct {
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	JitterFraction   float64       `mapstructure:"jitter_fraction"`
	DisableThreshold int           `mapstructure:"disable_threshold"`
	SnippetMaxBytes  int           `mapstructure:"snippet_max_bytes"`
	// AllowInsecureURLs permits http:// endpoint URLs (local/test only).
	AllowInsecureURLs bool          `mapstructure:"allow_insecure_urls"`
	DedupeTTL         time.Duration `mapstructure:"dedupe_ttl"`
}

// SweepConfig tunes the retry sweep workers.
type SweepConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	Workers   int           `mapstructure:"workers"`
	// StuckAfter reclaims IN_FLIGHT attempts older than this as failed.
	StuckAfter time.Duration `mapstructure:"stuck_after"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WHG_ (Webhook Gateway).
// Nested keys use underscore: WHG_DATABASE_HOST, WHG_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "webhook_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "webhook-gateway")
	v.SetDefault("aes.key", "")
	v.SetDefault("producer.key", "")
	v.SetDefault("producer.max_drift", "60s")
	v.SetDefault("delivery.http_timeout", "10s")
	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.backoff_base", "30s")
	v.SetDefault("delivery.backoff_max", "10m")
	v.SetDefault("delivery.jitter_fraction", 0.2)
	v.SetDefault("delivery.disable_threshold", 10)
	v.SetDefault("delivery.snippet_max_bytes", 1024)
	v.SetDefault("delivery.allow_insecure_urls", false)
	v.SetDefault("delivery.dedupe_ttl", "24h")
	v.SetDefault("sweep.interval", "5s")
	v.SetDefault("sweep.batch_size", 50)
	v.SetDefault("sweep.workers", 2)
	v.SetDefault("sweep.stuck_after", "20s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: WHG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("WHG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
