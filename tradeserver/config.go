package tradeserver

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/stickerbook/trade-engine/tradeserver/config"
	"github.com/stickerbook/trade-engine/tradeserver/database"
)

// LoadConfig reads the TOML file at path, then applies secrets from the
// environment (and an optional .env file next to the process).
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err = godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log      LogConfig         `toml:"log"`
	DB       database.DBConfig `toml:"db"`
	Web      WebConfig         `toml:"web"`
	Realtime RealtimeConfig    `toml:"realtime"`
	Redis    RedisConfig       `toml:"redis"`
	Auth     AuthConfig        `toml:"auth"`
	Trade    TradeConfig       `toml:"trade"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	AddSource bool       `toml:"add_source"`
}

type WebConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins string   `toml:"allowed_origins"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     Duration `toml:"rate_window"`
}

type RealtimeConfig struct {
	Addr string `toml:"addr"`
	Path string `toml:"path"`
}

type RedisConfig struct {
	Enabled       bool   `toml:"enabled"`
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	PoolSize      int    `toml:"pool_size"`
	ChannelPrefix string `toml:"channel_prefix"`
}

type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	Issuer    string   `toml:"issuer"`
	TokenTTL  Duration `toml:"token_ttl"`
}

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type TradeConfig struct {
	Store              string   `toml:"store"`
	MaxRetries         int      `toml:"max_retries"`
	HistoryLimit       int      `toml:"history_limit"`
	ResultCacheSize    int      `toml:"result_cache_size"`
	StaleMatchingAfter Duration `toml:"stale_matching_after"`
	SweepInterval      Duration `toml:"sweep_interval"`
}

// Duration decodes TOML strings such as "90s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TRADE_DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("TRADE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("TRADE_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("TRADE_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Redis.Enabled = enabled
		}
	}
}

func (c *Config) applyDefaults() {
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.Web.Addr == "" {
		c.Web.Addr = config.DefaultWebAddr
	}
	if c.Web.RateLimit == 0 {
		c.Web.RateLimit = config.UserRateLimit
	}
	if c.Web.RateWindow.Duration == 0 {
		c.Web.RateWindow.Duration = config.RateLimitWindow
	}
	if c.Realtime.Addr == "" {
		c.Realtime.Addr = config.DefaultRealtimeAddr
	}
	if c.Realtime.Path == "" {
		c.Realtime.Path = "/ws"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = config.DefaultChannelPrefix
	}
	if c.Auth.TokenTTL.Duration == 0 {
		c.Auth.TokenTTL.Duration = config.TokenExpiration
	}
	if c.Trade.Store == "" {
		c.Trade.Store = StorePostgres
	}
	if c.Trade.MaxRetries == 0 {
		c.Trade.MaxRetries = config.MaxRetries
	}
	if c.Trade.HistoryLimit == 0 {
		c.Trade.HistoryLimit = config.DefaultHistoryLimit
	}
	if c.Trade.ResultCacheSize == 0 {
		c.Trade.ResultCacheSize = config.SettlementCacheSize
	}
	if c.Trade.SweepInterval.Duration == 0 {
		c.Trade.SweepInterval.Duration = config.SweepInterval
	}
}

func (c *Config) Validate() error {
	switch c.Trade.Store {
	case StorePostgres:
		if c.DB.Host == "" {
			return errors.New("config: db.host is required")
		}
		if c.DB.Database == "" {
			return errors.New("config: db.database is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown trade.store %q", c.Trade.Store)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required (or TRADE_JWT_SECRET)")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required when redis is enabled")
	}
	if c.Trade.MaxRetries < 1 {
		return fmt.Errorf("config: trade.max_retries must be positive, got %d", c.Trade.MaxRetries)
	}
	if c.Trade.StaleMatchingAfter.Duration < 0 {
		return errors.New("config: trade.stale_matching_after cannot be negative")
	}
	return nil
}
