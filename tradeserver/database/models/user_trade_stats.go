package models

import (
	"time"

	"github.com/uptrace/bun"
)

type UserTradeStats struct {
	bun.BaseModel `bun:"table:user_trade_stats,alias:uts"`

	UserID      string    `bun:"user_id,pk"`
	TradeCount  int64     `bun:"trade_count,notnull,default:0"`
	LastTradeAt time.Time `bun:"last_trade_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}
