package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Session status values as stored in trade_sessions.status.
const (
	SessionMatching       = "matching"
	SessionNegotiating    = "negotiating"
	SessionInitiatorReady = "initiator_ready"
	SessionPartnerReady   = "partner_ready"
	SessionCompleted      = "completed"
	SessionCancelled      = "cancelled"
)

// ClosedStatuses are the terminal session statuses.
var ClosedStatuses = []string{SessionCompleted, SessionCancelled}

type TradeSession struct {
	bun.BaseModel `bun:"table:trade_sessions,alias:ts"`

	ID            string     `bun:"id,pk,type:text"`
	InitiatorID   string     `bun:"initiator_id,notnull"`
	PartnerID     string     `bun:"partner_id,nullzero"`
	Status        string     `bun:"status,notnull"`
	FailureReason string     `bun:"failure_reason,notnull,default:''"`
	Version       int64      `bun:"version,notnull,default:1"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	CompletedAt   *time.Time `bun:"completed_at"`
}
