package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserSticker is a user's stack of one sticker at one rank. Rows never hold
// a zero quantity; an emptied stack is deleted.
type UserSticker struct {
	bun.BaseModel `bun:"table:user_stickers,alias:us"`

	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        string    `bun:"user_id,notnull"`
	StickerID     string    `bun:"sticker_id,notnull"`
	Rank          int16     `bun:"rank,notnull"`
	Quantity      int64     `bun:"quantity,notnull"`
	TotalAcquired int64     `bun:"total_acquired,notnull,default:0"`
	Obtained      time.Time `bun:"obtained,notnull,default:current_timestamp"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
