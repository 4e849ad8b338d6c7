package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TradeItem is one sticker stack staged by its owner. An owner has at most one
// row per sticker and rank in a session.
type TradeItem struct {
	bun.BaseModel `bun:"table:trade_items,alias:ti"`

	ID        string    `bun:"id,pk,type:text"`
	TradeID   string    `bun:"trade_id,notnull"`
	OwnerID   string    `bun:"owner_id,notnull"`
	StickerID string    `bun:"sticker_id,notnull"`
	Rank      int16     `bun:"rank,notnull"`
	Quantity  int64     `bun:"quantity,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
