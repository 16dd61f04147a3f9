package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Pinning   PinningConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// StoreConfig selects the queue store driver. "sqlite" needs no external
// infrastructure; "redis" is for deployments that already run Redis for
// the background scheduler.
type StoreConfig struct {
	Driver          string // "sqlite" or "redis"
	SQLitePath      string
	ResultRetention time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

// PinningConfig describes the remote pinning gateway uploads are
// relayed to.
type PinningConfig struct {
	BaseURL string
	Network string
	Timeout time.Duration
}

type RateLimitConfig struct {
	UploadPerHour int
	DrainPerMin   int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.sqlite_path", "uploads.db")
	viper.SetDefault("store.result_retention_hours", 24)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("pinning.base_url", "https://uploads.pinata.cloud")
	viper.SetDefault("pinning.network", "private")
	viper.SetDefault("pinning.timeout_seconds", 60)
	viper.SetDefault("ratelimit.upload_per_hour", 50)
	viper.SetDefault("ratelimit.drain_per_min", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Store: StoreConfig{
			Driver:          viper.GetString("store.driver"),
			SQLitePath:      viper.GetString("store.sqlite_path"),
			ResultRetention: time.Duration(viper.GetInt("store.result_retention_hours")) * time.Hour,
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Pinning: PinningConfig{
			BaseURL: viper.GetString("pinning.base_url"),
			Network: viper.GetString("pinning.network"),
			Timeout: time.Duration(viper.GetInt("pinning.timeout_seconds")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			UploadPerHour: viper.GetInt("ratelimit.upload_per_hour"),
			DrainPerMin:   viper.GetInt("ratelimit.drain_per_min"),
		},
	}

	return cfg, nil
}
