// Package config provides configuration management for the WhatsApp
// gateway, loaded via viper from environment variables (prefix WAGW_) and
// an optional YAML file, matching the teacher's config layout extended
// with the gateway's own sections (SPEC_FULL §2.1).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	HumanBehavior HumanBehaviorConfig `mapstructure:"human_behavior"`
	Session      SessionConfig
	Broadcast    BroadcastConfig
	EventBus     EventBusConfig `mapstructure:"event_bus"`
	ImageKit     ImageKitConfig
}

// ServerConfig holds HTTP server configuration (spec §6.3).
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings (spec §6.2).
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig backs the behavior manager's dedup set.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// HumanBehaviorConfig exposes the otherwise-fixed C2 parameters as tunables
// (spec §4.2's defaults become this struct's viper defaults).
type HumanBehaviorConfig struct {
	HourlyCap                int           `mapstructure:"hourly_cap"`
	DailyCap                 int           `mapstructure:"daily_cap"`
	NetworkHiccupProbability float64       `mapstructure:"network_hiccup_probability"`
	DedupCap                 int64         `mapstructure:"dedup_cap"`
}

// SessionConfig holds C6 directories and intervals.
type SessionConfig struct {
	ID                string        `mapstructure:"id"`
	SessionDir        string        `mapstructure:"session_dir"`
	ChromeProfileDir  string        `mapstructure:"chrome_profile_dir"`
	WatchdogMin       time.Duration `mapstructure:"watchdog_min"`
	WatchdogMax       time.Duration `mapstructure:"watchdog_max"`
	MemoryMonitorMin  time.Duration `mapstructure:"memory_monitor_min"`
	MemoryMonitorMax  time.Duration `mapstructure:"memory_monitor_max"`
	SoftMemoryLimitMB int           `mapstructure:"soft_memory_limit_mb"`
	HardMemoryLimitMB int           `mapstructure:"hard_memory_limit_mb"`
}

// BroadcastConfig holds C7 keep-alive pacing.
type BroadcastConfig struct {
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// EventBusConfig holds C9 fanout buffer sizing.
type EventBusConfig struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// ImageKitConfig holds the optional image-upload CDN credentials (spec
// §6.3: missing image-kit disables the upload endpoint, returns 503).
type ImageKitConfig struct {
	PublicKey   string `mapstructure:"public_key"`
	PrivateKey  string `mapstructure:"private_key"`
	URLEndpoint string `mapstructure:"url_endpoint"`
}

// Enabled reports whether image-upload credentials are configured.
func (c ImageKitConfig) Enabled() bool {
	return c.PublicKey != "" && c.PrivateKey != "" && c.URLEndpoint != ""
}

// LoadConfig loads and validates the gateway configuration from
// environment variables (prefix WAGW_) and an optional config.yaml.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("WAGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{"database.host", "database.name", "database.user", "database.password",
		"redis.host", "redis.password", "imagekit.public_key", "imagekit.private_key", "imagekit.url_endpoint"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/wa-gateway/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "15m")
	v.SetDefault("database.migrations_path", "file://internal/store/migrations")

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("human_behavior.hourly_cap", 80)
	v.SetDefault("human_behavior.daily_cap", 500)
	v.SetDefault("human_behavior.network_hiccup_probability", 0.03)
	v.SetDefault("human_behavior.dedup_cap", 1000)

	v.SetDefault("session.id", "default")
	v.SetDefault("session.session_dir", "./.wa-session")
	v.SetDefault("session.chrome_profile_dir", "./.wa-chrome-profile")
	v.SetDefault("session.watchdog_min", "7m")
	v.SetDefault("session.watchdog_max", "10m")
	v.SetDefault("session.memory_monitor_min", "6m")
	v.SetDefault("session.memory_monitor_max", "8m")
	v.SetDefault("session.soft_memory_limit_mb", 350)
	v.SetDefault("session.hard_memory_limit_mb", 450)

	v.SetDefault("broadcast.keep_alive_interval", "30s")

	v.SetDefault("event_bus.subscriber_buffer", 32)
}

func (cfg *Config) validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if cfg.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	return nil
}
