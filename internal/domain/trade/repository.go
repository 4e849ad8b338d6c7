package trade

import (
	"context"
	"time"
)

// Repository persists sessions, items and messages. Methods that return a
// pointer and no error when nothing matches say so; the rest return an error
// wrapping ErrNotFound.
type Repository interface {
	// LockMatchQueue serialises matchmaking for the rest of the transaction.
	LockMatchQueue(ctx context.Context) error

	GetSession(ctx context.Context, tradeID string, forUpdate bool) (*Session, error)
	// FindOpenSession returns the user's non-terminal session, or nil.
	FindOpenSession(ctx context.Context, userID string) (*Session, error)
	// ClaimOldestWaiting atomically turns the oldest Matching session of
	// another user into a Negotiating session with userID as partner. It
	// returns nil when nobody is waiting.
	ClaimOldestWaiting(ctx context.Context, userID string, now time.Time) (*Session, error)
	CreateSession(ctx context.Context, s *Session) error
	// UpdateSession writes s only if the stored version equals
	// expectedVersion, otherwise it fails with ErrConcurrencyConflict.
	UpdateSession(ctx context.Context, s *Session, expectedVersion int64) error

	ListItems(ctx context.Context, tradeID string) ([]Item, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	// FindItem returns the owner's item for ref in the session, or nil.
	FindItem(ctx context.Context, tradeID, ownerID string, ref StickerRef) (*Item, error)
	SaveItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, itemID string) error
	// StagedQuantity sums the owner's offers of ref across open sessions.
	StagedQuantity(ctx context.Context, ownerID string, ref StickerRef) (int64, error)

	AddMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, tradeID string) ([]Message, error)

	ListSessions(ctx context.Context, userID string, includeClosed bool) ([]Session, error)
	ListCompleted(ctx context.Context, userID string, limit int) ([]Session, error)
	ListStaleMatching(ctx context.Context, before time.Time) ([]Session, error)
}

// Inventory is the sticker balance store. Transfer must be atomic within the
// surrounding transaction and must refuse to drive a balance negative.
type Inventory interface {
	Balance(ctx context.Context, userID string, ref StickerRef) (int64, error)
	Transfer(ctx context.Context, fromUserID, toUserID string, ref StickerRef, quantity int64) error
	Holdings(ctx context.Context, userID string) ([]Holding, error)
}

type Tx interface {
	Repository
	Inventory
}

// Store opens transactions over the trade tables and inventory together.
type Store interface {
	// InTx runs fn in one transaction. A non-nil error from fn rolls back
	// every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Reader returns a handle for reads outside a transaction. It is safe for
	// concurrent use.
	Reader() Tx
}

// TradeCounter keeps lifetime trade statistics per user.
type TradeCounter interface {
	IncrementTradeCount(ctx context.Context, userID string) error
}
