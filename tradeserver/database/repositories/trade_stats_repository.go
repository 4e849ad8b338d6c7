package repositories

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/stickerbook/trade-engine/tradeserver/database/models"
)

type TradeStatsRepository interface {
	IncrementTradeCount(ctx context.Context, userID string) error
}

type tradeStatsRepository struct {
	*BaseRepository
}

func NewTradeStatsRepository(db bun.IDB) TradeStatsRepository {
	return &tradeStatsRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *tradeStatsRepository) IncrementTradeCount(ctx context.Context, userID string) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	now := time.Now()
	_, err := r.db.NewInsert().
		Model(&models.UserTradeStats{
			UserID:      userID,
			TradeCount:  1,
			LastTradeAt: now,
			UpdatedAt:   now,
		}).
		On("CONFLICT (user_id) DO UPDATE").
		Set("trade_count = uts.trade_count + 1").
		Set("last_trade_at = EXCLUDED.last_trade_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return r.HandleErrorWithID("increment", "user_trade_stats", userID, err)
}
