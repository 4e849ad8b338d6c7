package trade

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper cancels sessions that have waited in Matching for longer than ttl.
// It is an optional policy; a zero ttl disables it.
type Sweeper struct {
	engine   *Engine
	ttl      time.Duration
	interval time.Duration
}

func NewSweeper(engine *Engine, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		ttl:      ttl,
		interval: interval,
	}
}

func (sw *Sweeper) Enabled() bool {
	return sw.ttl > 0 && sw.interval > 0
}

// Run sweeps every interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	if !sw.Enabled() {
		slog.Info("Matching sweeper disabled", slog.String("type", "sys"))
		return nil
	}

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := sw.SweepOnce(ctx); err != nil {
				slog.Error("Matching sweep failed",
					slog.String("type", "error"),
					slog.Any("error", err),
				)
			}
		}
	}
}

// SweepOnce cancels every stale waiting session and returns how many it ended.
func (sw *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := sw.engine.now().Add(-sw.ttl)
	stale, err := sw.engine.store.Reader().ListStaleMatching(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sess := range stale {
		ok, err := sw.engine.expireMatch(ctx, sess.ID, cutoff)
		if err != nil {
			slog.Warn("Failed to expire matching session",
				slog.String("type", "trade"),
				slog.String("trade_id", sess.ID),
				slog.Any("error", err),
			)
			continue
		}
		if ok {
			expired++
		}
	}

	if expired > 0 {
		slog.Info("Expired stale matching sessions",
			slog.String("type", "trade"),
			slog.Int("count", expired),
			slog.Duration("older_than", sw.ttl),
		)
	}
	return expired, nil
}
