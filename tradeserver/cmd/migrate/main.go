// Command migrate prepares the trade database: it creates or upgrades the
// schema, can wipe trade state, and can seed sticker balances.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	gateway "github.com/stickerbook/trade-engine/internal/gateways/database"
	"github.com/stickerbook/trade-engine/tradeserver"
	"github.com/stickerbook/trade-engine/tradeserver/database"
	"github.com/stickerbook/trade-engine/tradeserver/logger"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	reset := flag.Bool("reset", false, "truncate trade sessions, items, messages and stats")
	grants := flag.String("grant", "", "comma separated user:sticker:rank:quantity balances to credit")
	flag.Parse()

	cfg, err := tradeserver.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	seeds, err := parseGrants(*grants)
	if err != nil {
		slog.Error("Invalid -grant flag", slog.Any("error", err))
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, cfg.DB, *reset, seeds); err != nil {
		logger.LogError("Migration failed", err)
		os.Exit(1)
	}
	logger.LogSystem("Migration completed successfully")
}

func run(ctx context.Context, cfg database.DBConfig, reset bool, seeds []grant) error {
	db, err := database.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	if err := db.InitializeSchema(ctx); err != nil {
		return err
	}
	logger.LogSystem("Schema initialized", slog.Duration("took", time.Since(start)))

	if reset {
		if err := db.ResetTradeTables(ctx); err != nil {
			return err
		}
	}

	store := gateway.NewStore(db.BunDB())
	for _, g := range seeds {
		if err := store.Grant(ctx, g.userID, g.ref, g.quantity); err != nil {
			return err
		}
		logger.LogSystem("Granted stickers",
			slog.String("user_id", g.userID),
			slog.String("sticker", g.ref.String()),
			slog.Int64("quantity", g.quantity),
		)
	}
	if len(seeds) > 0 {
		logger.LogSystem("Seeding finished", slog.Int("grants", len(seeds)))
	}
	return nil
}

func splitGrants(raw string) []string {
	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
