package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Outbox     OutboxConfig    `mapstructure:"outbox"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	APIKeys    []string        `mapstructure:"api_keys"`
	LogLevel   string          `mapstructure:"log_level"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

// OutboxConfig tunes the dispatch engine. Out-of-range values are clamped,
// not rejected, so a bad env override degrades instead of crashing the
// worker.
type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	LockSeconds   int           `mapstructure:"lock_seconds"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	WorkerID      string        `mapstructure:"worker_id"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// Normalize clamps the outbox settings to their supported ranges.
func (c *OutboxConfig) Normalize() {
	if c.BatchSize < 1 || c.BatchSize > 1000 {
		c.BatchSize = 100
	}
	if c.LockSeconds < 5 || c.LockSeconds > 900 {
		c.LockSeconds = 120
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 100 {
		c.MaxAttempts = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (OUTBOX_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (OUTBOX_*)
	v.SetEnvPrefix("OUTBOX")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Outbox.Normalize()
	return cfg, nil
}
