package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/stickerbook/trade-engine/tradeserver/config"
	"github.com/stickerbook/trade-engine/tradeserver/database/models"
	"github.com/stickerbook/trade-engine/tradeserver/logger"
)

const (
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
	schemaVersion        = 1 // bump when schema/migrations change
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	SSLMode      string `toml:"sslmode"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	var conn net.Conn
	var err error

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	for i := 0; i < defaultMaxRetries; i++ {
		conn, err = net.DialTimeout("tcp", addr, config.NetworkDialTimeout)
		if err == nil {
			break
		}
		slog.Warn("Database not reachable yet",
			slog.String("type", "db"),
			slog.String("addr", addr),
			slog.Int("attempt", i+1),
			slog.Any("error", err),
		)
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}
	conn.Close()

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.ConnConfig.ConnectTimeout = config.NetworkDialTimeout

	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{pool: pool, bunDB: newBunDB(cfg)}, nil
}

func sslMode(cfg DBConfig) string {
	if cfg.SSLMode != "" {
		return cfg.SSLMode
	}
	if v := os.Getenv("PG_SSLMODE"); v != "" {
		return v
	}
	return "disable"
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode(cfg),
	)
}

func newBunDB(cfg DBConfig) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(buildConnString(cfg))))
	if cfg.PoolSize > 0 {
		sqldb.SetMaxOpenConns(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) GetPool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) ExecWithLog(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	result, err := db.pool.Exec(ctx, sql, args...)
	logger.LogQuery(sql, time.Since(start), err)
	return result, err
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	if db.bunDB != nil {
		db.bunDB.Close()
	}
}

// Ping verifies both database connections are working
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgxpool ping failed: %w", err)
	}
	if err := db.bunDB.PingContext(ctx); err != nil {
		return fmt.Errorf("bun ping failed: %w", err)
	}
	return nil
}

// InitializeSchema creates the trade and inventory tables, their constraints
// and indexes. It is safe to run on every start.
func (db *DB) InitializeSchema(ctx context.Context) error {
	if os.Getenv("DB_FAST_INIT") == "1" {
		if err := db.ensureAppMeta(ctx); err == nil {
			if v, _ := db.getAppMeta(ctx, "schema_version"); v == strconv.Itoa(schemaVersion) {
				logger.LogSystem("Schema up-to-date, skipping initialization",
					slog.Int("schema_version", schemaVersion))
				return nil
			}
		}
	}

	tables := []any{
		(*models.TradeSession)(nil),
		(*models.TradeItem)(nil),
		(*models.TradeMessage)(nil),
		(*models.UserSticker)(nil),
		(*models.UserTradeStats)(nil),
	}
	for _, model := range tables {
		if _, err := db.bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := db.MigrateSchema(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_trade_sessions_initiator ON trade_sessions(initiator_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_trade_sessions_partner ON trade_sessions(partner_id, status);",
		"CREATE INDEX IF NOT EXISTS idx_trade_sessions_waiting ON trade_sessions(created_at, id) WHERE status = 'matching';",
		"CREATE INDEX IF NOT EXISTS idx_trade_sessions_completed ON trade_sessions(completed_at DESC) WHERE status = 'completed';",
		"CREATE INDEX IF NOT EXISTS idx_trade_items_trade ON trade_items(trade_id);",
		"CREATE INDEX IF NOT EXISTS idx_trade_items_owner_sticker ON trade_items(owner_id, sticker_id, rank);",
		"CREATE INDEX IF NOT EXISTS idx_trade_messages_trade ON trade_messages(trade_id, created_at);",
		"CREATE INDEX IF NOT EXISTS idx_user_stickers_user ON user_stickers(user_id);",
	}
	for _, idx := range indexes {
		if _, err := db.ExecWithLog(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := db.ensureAppMeta(ctx); err == nil {
		_ = db.setAppMeta(ctx, "schema_version", strconv.Itoa(schemaVersion))
	}
	return nil
}

// MigrateSchema adds the constraints bun's CREATE TABLE cannot express.
func (db *DB) MigrateSchema(ctx context.Context) error {
	constraints := []struct {
		table, name, def string
	}{
		{"trade_sessions", "trade_sessions_status_check",
			"CHECK (status IN ('matching','negotiating','initiator_ready','partner_ready','completed','cancelled'))"},
		{"trade_sessions", "trade_sessions_distinct_users",
			"CHECK (partner_id IS NULL OR partner_id <> initiator_id)"},
		{"trade_items", "trade_items_session_fk",
			"FOREIGN KEY (trade_id) REFERENCES trade_sessions(id) ON DELETE CASCADE"},
		{"trade_items", "trade_items_unique_stack",
			"UNIQUE (trade_id, owner_id, sticker_id, rank)"},
		{"trade_items", "trade_items_quantity_check", "CHECK (quantity > 0)"},
		{"trade_messages", "trade_messages_session_fk",
			"FOREIGN KEY (trade_id) REFERENCES trade_sessions(id) ON DELETE CASCADE"},
		{"user_stickers", "user_stickers_unique_stack", "UNIQUE (user_id, sticker_id, rank)"},
		{"user_stickers", "user_stickers_quantity_check", "CHECK (quantity > 0)"},
	}

	for _, c := range constraints {
		stmt := fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
					ALTER TABLE %s ADD CONSTRAINT %s %s;
				END IF;
			END $$;`, c.name, c.table, c.name, c.def)
		if _, err := db.ExecWithLog(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add constraint %s: %w", c.name, err)
		}
	}
	return nil
}

// ResetTradeTables truncates every table owned by this service.
func (db *DB) ResetTradeTables(ctx context.Context) error {
	stmt := `TRUNCATE TABLE trade_messages, trade_items, trade_sessions, user_trade_stats RESTART IDENTITY CASCADE;`
	if _, err := db.ExecWithLog(ctx, stmt); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	logger.LogSystem("Trade tables truncated")
	return nil
}

func (db *DB) ensureAppMeta(ctx context.Context) error {
	_, err := db.ExecWithLog(ctx, `CREATE TABLE IF NOT EXISTS app_meta (key TEXT PRIMARY KEY, value TEXT)`)
	return err
}

func (db *DB) getAppMeta(ctx context.Context, key string) (string, error) {
	var v string
	if err := db.pool.QueryRow(ctx, `SELECT value FROM app_meta WHERE key = $1`, key).Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}

func (db *DB) setAppMeta(ctx context.Context, key, value string) error {
	_, err := db.ExecWithLog(ctx, `INSERT INTO app_meta(key, value) VALUES($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}
