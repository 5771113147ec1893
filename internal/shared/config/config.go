package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// ServiceToken authenticates the task-submission and polling services
	// that call the internal billing endpoints.
	ServiceToken string `mapstructure:"service_token"`
}

// BillingConfig holds credit ledger configuration.
type BillingConfig struct {
	// TaskExpiryWindow is how long a pending task may wait for a terminal
	// signal before the sweeper expires and refunds it.
	TaskExpiryWindow time.Duration `mapstructure:"task_expiry_window"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize   int           `mapstructure:"sweep_batch_size"`
	// SignalDedupTTL is the retention for the Redis terminal-signal markers
	// that short-circuit repeated completion polls.
	SignalDedupTTL time.Duration   `mapstructure:"signal_dedup_ttl"`
	Features       []FeatureConfig `mapstructure:"features"`
}

// FeatureConfig configures one billable feature.
// Pricing is either "fixed" (Cost credits per invocation) or "per_second"
// (CreditsPerSecond of output media, estimated at DefaultSeconds when the
// request does not say).
type FeatureConfig struct {
	Name             string `mapstructure:"name"`
	FreeQuota        int64  `mapstructure:"free_quota"`
	Pricing          string `mapstructure:"pricing"`
	Cost             int64  `mapstructure:"cost"`
	CreditsPerSecond int64  `mapstructure:"credits_per_second"`
	DefaultSeconds   int    `mapstructure:"default_seconds"`
	Synchronous      bool   `mapstructure:"synchronous"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pixelmint")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("PIXELMINT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("PIXELMINT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if token := os.Getenv("PIXELMINT_SERVICE_TOKEN"); token != "" {
		cfg.Auth.ServiceToken = token
	}
	if password := os.Getenv("PIXELMINT_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("PIXELMINT_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "pixelmint")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Billing defaults
	v.SetDefault("billing.task_expiry_window", 24*time.Hour)
	v.SetDefault("billing.sweep_interval", 5*time.Minute)
	v.SetDefault("billing.sweep_batch_size", 100)
	v.SetDefault("billing.signal_dedup_ttl", 24*time.Hour)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.namespace", "pixelmint")
}
