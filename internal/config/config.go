package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" envconfig:"SERVER_PORT"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" envconfig:"SERVER_MAX_HEADER_BYTES"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT"`
	User     string `mapstructure:"user" envconfig:"DB_USER"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	// Addr is optional; when empty the service falls back to in-process
	// locking, which is fine for a single instance.
	Addr     string `mapstructure:"addr" envconfig:"REDIS_ADDR"`
	Password string `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
}

type SchedulingConfig struct {
	// MaxRescheduleCount caps how many times one appointment can be moved.
	MaxRescheduleCount int `mapstructure:"max_reschedule_count" envconfig:"MAX_RESCHEDULE_COUNT"`
	// CancelCutoff is the minimum lead time before the slot for a
	// patient-initiated cancellation.
	CancelCutoff time.Duration `mapstructure:"cancel_cutoff" envconfig:"CANCEL_CUTOFF"`
	// SettingsCacheTTL bounds staleness of per-hospital settings reads.
	SettingsCacheTTL time.Duration `mapstructure:"settings_cache_ttl" envconfig:"SETTINGS_CACHE_TTL"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int     `mapstructure:"burst" envconfig:"RATE_LIMIT_BURST"`
}

type LogConfig struct {
	Level string `mapstructure:"level" envconfig:"LOG_LEVEL"`
}

// LoadConfig reads config.yaml and then applies CLINIC_* environment
// overrides, so deployments can tweak single values without editing the file.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("clinic", &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.max_header_bytes", 1<<20)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("scheduling.max_reschedule_count", 3)
	viper.SetDefault("scheduling.cancel_cutoff", "2h")
	viper.SetDefault("scheduling.settings_cache_ttl", "5m")
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_second", 50)
	viper.SetDefault("rate_limit.burst", 100)
	viper.SetDefault("log.level", "info")
}
