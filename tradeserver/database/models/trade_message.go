package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TradeMessage struct {
	bun.BaseModel `bun:"table:trade_messages,alias:tm"`

	ID        string    `bun:"id,pk,type:text"`
	TradeID   string    `bun:"trade_id,notnull"`
	SenderID  string    `bun:"sender_id,notnull"`
	Type      string    `bun:"type,notnull"`
	StampID   string    `bun:"stamp_id,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
