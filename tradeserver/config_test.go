package tradeserver

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerbook/trade-engine/tradeserver/database"
)

const sampleConfig = `
[log]
level = "DEBUG"

[db]
host = "localhost"
user = "postgres"
password = "from-file"
database = "stickers"
pool_size = 8

[redis]
enabled = false
addr = "localhost:6379"

[auth]
jwt_secret = "file-secret"

[trade]
stale_matching_after = "10m"
history_limit = 50
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TRADE_DB_PASSWORD", "from-env")
	t.Setenv("TRADE_JWT_SECRET", "")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.DB.Password)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 10*time.Minute, cfg.Trade.StaleMatchingAfter.Duration)
	assert.Equal(t, 50, cfg.Trade.HistoryLimit)
	assert.Equal(t, 3, cfg.Trade.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Trade.SweepInterval.Duration)
	assert.Equal(t, "/ws", cfg.Realtime.Path)
	assert.Equal(t, "trade:", cfg.Redis.ChannelPrefix)
	assert.Equal(t, StorePostgres, cfg.Trade.Store)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.DB.Host = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, wantErr: true},
		{name: "memory store needs no db", mutate: func(c *Config) { c.Trade.Store = StoreMemory; c.DB = database.DBConfig{} }},
		{name: "unknown store", mutate: func(c *Config) { c.Trade.Store = "sqlite" }, wantErr: true},
		{name: "negative staleness", mutate: func(c *Config) { c.Trade.StaleMatchingAfter.Duration = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{}
			c.DB.Host = "localhost"
			c.DB.Database = "stickers"
			c.Auth.JWTSecret = "secret"
			c.applyDefaults()
			tt.mutate(c)

			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, sampleConfig+"\nsweep_interval = \"soon\"\n"))
	if err == nil {
		t.Errorf("LoadConfig() expected error for invalid duration")
	}
}
