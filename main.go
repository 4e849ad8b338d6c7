package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stickerbook/trade-engine/tradeserver"
	"github.com/stickerbook/trade-engine/tradeserver/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	issueToken := flag.String("issue-token", "", "print a bearer token for this user id and exit")
	flag.Parse()

	cfg, err := tradeserver.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	s := tradeserver.New(*cfg, version, commit)

	if *issueToken != "" {
		token, err := s.Signer.Issue(*issueToken)
		if err != nil {
			slog.Error("Failed to issue token", slog.Any("error", err))
			os.Exit(-1)
		}
		fmt.Println(token)
		return
	}

	slog.Info("Starting sticker trade server",
		slog.String("type", "sys"),
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("store", cfg.Trade.Store))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	err = s.Setup(setupCtx)
	cancel()
	if err != nil {
		logger.LogError("Failed to start trade server", err)
		os.Exit(-1)
	}
	defer s.Close()

	slog.Info("Trade server is running. Press CTRL-C to exit.", slog.String("type", "sys"))
	if err := s.Run(ctx); err != nil {
		logger.LogError("Trade server stopped with error", err)
		s.Close()
		os.Exit(1)
	}
	slog.Info("Trade server shutdown complete", slog.String("type", "sys"))
}
