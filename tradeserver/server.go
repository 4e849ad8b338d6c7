package tradeserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/stickerbook/trade-engine/backend"
	"github.com/stickerbook/trade-engine/backend/handlers"
	"github.com/stickerbook/trade-engine/backend/middleware"
	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/internal/domain/trade/memory"
	gateway "github.com/stickerbook/trade-engine/internal/gateways/database"
	"github.com/stickerbook/trade-engine/internal/gateways/realtime"
	"github.com/stickerbook/trade-engine/tradeserver/auth"
	"github.com/stickerbook/trade-engine/tradeserver/config"
	"github.com/stickerbook/trade-engine/tradeserver/database"
	"github.com/stickerbook/trade-engine/tradeserver/logger"
)

func New(cfg Config, version string, commit string) *Server {
	return &Server{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
		Hub:     realtime.NewHub(),
		Signer:  auth.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration),
	}
}

// Server owns every long-lived component of the trade service.
type Server struct {
	Cfg     Config
	Version string
	Commit  string

	// DB is nil when the in-memory store is configured.
	DB      *database.DB
	Store   trade.Store
	Counter trade.TradeCounter
	Engine  *trade.Engine
	Hub     *realtime.Hub
	Bridge  *realtime.RedisBridge
	Redis   *redis.Client
	Signer  *auth.Signer
}

// Setup connects the store and redis and builds the engine.
func (s *Server) Setup(ctx context.Context) error {
	if err := s.setupStore(ctx); err != nil {
		return err
	}

	var notifier trade.Notifier = s.Hub
	if s.Cfg.Redis.Enabled {
		if err := s.setupRedis(ctx); err != nil {
			return err
		}
		notifier = s.Bridge
	}

	engine, err := trade.NewEngine(s.Store, notifier, s.Counter, trade.Config{
		MaxRetries:      s.Cfg.Trade.MaxRetries,
		RetryBaseDelay:  config.RetryBaseDelay,
		HistoryLimit:    s.Cfg.Trade.HistoryLimit,
		ResultCacheSize: s.Cfg.Trade.ResultCacheSize,
	})
	if err != nil {
		return err
	}
	s.Engine = engine
	return nil
}

func (s *Server) setupStore(ctx context.Context) error {
	if s.Cfg.Trade.Store == StoreMemory {
		store := memory.New()
		s.Store, s.Counter = store, store
		slog.Warn("Using the in-memory trade store; state is lost on restart",
			slog.String("type", "sys"))
		return nil
	}

	start := time.Now()
	db, err := database.New(ctx, s.Cfg.DB)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	logger.LogSystem("Database connected successfully",
		slog.String("database", s.Cfg.DB.Database),
		slog.Duration("took", time.Since(start)))

	if err := db.InitializeSchema(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	logger.LogSystem("Database schema initialized successfully")

	store := gateway.NewStore(db.BunDB())
	s.DB, s.Store, s.Counter = db, store, store
	return nil
}

func (s *Server) setupRedis(ctx context.Context) error {
	s.Redis = redis.NewClient(&redis.Options{
		Addr:        s.Cfg.Redis.Addr,
		Password:    s.Cfg.Redis.Password,
		DB:          s.Cfg.Redis.DB,
		PoolSize:    s.Cfg.Redis.PoolSize,
		DialTimeout: config.NetworkDialTimeout,
	})
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Redis.Close()
		s.Redis = nil
		return fmt.Errorf("failed to connect to redis at %s: %w", s.Cfg.Redis.Addr, err)
	}
	s.Bridge = realtime.NewRedisBridge(s.Redis, s.Cfg.Redis.ChannelPrefix, s.Hub)
	logger.LogSystem("Connected to redis", slog.String("addr", s.Cfg.Redis.Addr))
	return nil
}

// Run serves HTTP and websocket traffic and runs the background workers until
// ctx is cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	limiter := middleware.NewRateLimiter(s.Cfg.Web.RateLimit, s.Cfg.Web.RateWindow.Duration)
	webApp := &handlers.WebApp{
		Trades:       s.Engine,
		Hub:          s.Hub,
		HistoryLimit: s.Cfg.Trade.HistoryLimit,
		Version:      s.Version,
		Commit:       s.Commit,
	}
	if s.DB != nil {
		webApp.DB = s.DB
	}
	app := backend.NewApp(webApp, backend.Options{
		Verifier:       s.Signer,
		Limiter:        limiter,
		AllowedOrigins: s.Cfg.Web.AllowedOrigins,
	})

	mux := http.NewServeMux()
	mux.Handle(s.Cfg.Realtime.Path, realtime.NewHandler(s.Hub, s.Signer, strings.Split(s.Cfg.Web.AllowedOrigins, ",")))
	wsServer := &http.Server{
		Addr:              s.Cfg.Realtime.Addr,
		Handler:           mux,
		ReadHeaderTimeout: config.RequestTimeout,
	}

	sweeper := trade.NewSweeper(s.Engine, s.Cfg.Trade.StaleMatchingAfter.Duration, s.Cfg.Trade.SweepInterval.Duration)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.LogSystem("Starting HTTP API", slog.String("address", s.Cfg.Web.Addr))
		if err := app.Listen(s.Cfg.Web.Addr); err != nil {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.LogSystem("Starting realtime endpoint",
			slog.String("address", s.Cfg.Realtime.Addr),
			slog.String("path", s.Cfg.Realtime.Path))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("realtime endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		limiter.RunCleanup(ctx, time.Minute)
		return nil
	})
	if s.Bridge != nil {
		g.Go(func() error {
			return s.Bridge.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.LogSystem("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		s.Hub.Shutdown()
		return errors.Join(
			wsServer.Shutdown(shutdownCtx),
			app.ShutdownWithContext(shutdownCtx),
		)
	})

	return g.Wait()
}

// Close releases the store and redis connections.
func (s *Server) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.LogError("Failed to close redis client", err)
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
