// Package database backs the trade engine with the PostgreSQL repositories.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/stickerbook/trade-engine/internal/domain/logger"
	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/tradeserver/database/repositories"
)

var expectedErrors = []error{
	trade.ErrNotFound,
	trade.ErrConcurrencyConflict,
	trade.ErrInsufficientInventory,
}

// Store implements trade.Store and trade.TradeCounter on top of bun.
type Store struct {
	db        *bun.DB
	txOptions *sql.TxOptions
	stats     repositories.TradeStatsRepository
	reader    *storeTx
}

func NewStore(db *bun.DB) *Store {
	return &Store{
		db:        db,
		txOptions: &sql.TxOptions{Isolation: sql.LevelSerializable},
		stats:     repositories.NewTradeStatsRepository(db),
		reader:    newStoreTx(db),
	}
}

// InTx runs fn in a serializable transaction. Serialization failures and
// deadlocks come back as trade.ErrConcurrencyConflict so the engine retries.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx trade.Tx) error) error {
	err := s.db.RunInTx(ctx, s.txOptions, func(ctx context.Context, btx bun.Tx) error {
		return fn(ctx, newStoreTx(btx))
	})
	if repositories.IsRetryable(err) && !errors.Is(err, trade.ErrConcurrencyConflict) {
		return fmt.Errorf("%w: %v", trade.ErrConcurrencyConflict, err)
	}
	return err
}

func (s *Store) Reader() trade.Tx {
	return s.reader
}

func (s *Store) IncrementTradeCount(ctx context.Context, userID string) (err error) {
	defer track("increment_trade_count", "user_trade_stats", userID)(&err)
	return s.stats.IncrementTradeCount(ctx, userID)
}

// Grant credits stickers to a user outside any trade. Used for seeding.
func (s *Store) Grant(ctx context.Context, userID string, ref trade.StickerRef, quantity int64) (err error) {
	defer track("grant", "user_sticker", userID, ref.String())(&err)
	if quantity <= 0 || !ref.Rank.Valid() || ref.StickerID == "" {
		return fmt.Errorf("%w: cannot grant %d of %s", trade.ErrInvalidArgument, quantity, ref)
	}
	return repositories.NewStickerRepository(s.db).Add(ctx, userID, ref.StickerID, int16(ref.Rank), quantity)
}

// track logs a store call and translates its error on the way out.
func track(operation, entity string, args ...any) func(*error) {
	ql := logger.NewQueryLogger(operation, entity, args...)
	ql.Expected = expectedErrors
	return func(errp *error) {
		*errp = translateError(*errp)
		ql.Log(*errp)
	}
}

// storeTx implements trade.Tx over either the pool or an open transaction.
type storeTx struct {
	trades   repositories.TradeRepository
	stickers repositories.StickerRepository
}

func newStoreTx(db bun.IDB) *storeTx {
	return &storeTx{
		trades:   repositories.NewTradeRepository(db),
		stickers: repositories.NewStickerRepository(db),
	}
}

func (t *storeTx) LockMatchQueue(ctx context.Context) (err error) {
	defer track("lock_match_queue", "trade_session")(&err)
	return t.trades.LockMatchQueue(ctx)
}

func (t *storeTx) GetSession(ctx context.Context, tradeID string, forUpdate bool) (_ *trade.Session, err error) {
	defer track("get_session", "trade_session", tradeID)(&err)
	m, err := t.trades.GetSession(ctx, tradeID, forUpdate)
	if err != nil {
		return nil, err
	}
	return toSession(m)
}

func (t *storeTx) FindOpenSession(ctx context.Context, userID string) (_ *trade.Session, err error) {
	defer track("find_open_session", "trade_session", userID)(&err)
	m, err := t.trades.FindOpenSession(ctx, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return toSession(m)
}

func (t *storeTx) ClaimOldestWaiting(ctx context.Context, userID string, now time.Time) (_ *trade.Session, err error) {
	defer track("claim_oldest_waiting", "trade_session", userID)(&err)
	m, err := t.trades.ClaimOldestWaiting(ctx, userID, now)
	if err != nil || m == nil {
		return nil, err
	}
	return toSession(m)
}

func (t *storeTx) CreateSession(ctx context.Context, s *trade.Session) (err error) {
	defer track("create_session", "trade_session", s.ID)(&err)
	return t.trades.CreateSession(ctx, fromSession(s))
}

func (t *storeTx) UpdateSession(ctx context.Context, s *trade.Session, expectedVersion int64) (err error) {
	defer track("update_session", "trade_session", s.ID, expectedVersion)(&err)
	return t.trades.UpdateSession(ctx, fromSession(s), expectedVersion)
}

func (t *storeTx) ListItems(ctx context.Context, tradeID string) (_ []trade.Item, err error) {
	defer track("list_items", "trade_item", tradeID)(&err)
	rows, err := t.trades.ListItems(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	items := make([]trade.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, *toItem(row))
	}
	return items, nil
}

func (t *storeTx) GetItem(ctx context.Context, itemID string) (_ *trade.Item, err error) {
	defer track("get_item", "trade_item", itemID)(&err)
	m, err := t.trades.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return toItem(m), nil
}

func (t *storeTx) FindItem(ctx context.Context, tradeID, ownerID string, ref trade.StickerRef) (_ *trade.Item, err error) {
	defer track("find_item", "trade_item", tradeID, ownerID, ref.String())(&err)
	m, err := t.trades.FindItem(ctx, tradeID, ownerID, ref.StickerID, int16(ref.Rank))
	if err != nil || m == nil {
		return nil, err
	}
	return toItem(m), nil
}

func (t *storeTx) SaveItem(ctx context.Context, item *trade.Item) (err error) {
	defer track("save_item", "trade_item", item.ID)(&err)
	if item.Quantity <= 0 {
		return fmt.Errorf("%w: item quantity must be positive", trade.ErrInvalidArgument)
	}
	return t.trades.SaveItem(ctx, fromItem(item))
}

func (t *storeTx) DeleteItem(ctx context.Context, itemID string) (err error) {
	defer track("delete_item", "trade_item", itemID)(&err)
	return t.trades.DeleteItem(ctx, itemID)
}

func (t *storeTx) StagedQuantity(ctx context.Context, ownerID string, ref trade.StickerRef) (_ int64, err error) {
	defer track("staged_quantity", "trade_item", ownerID, ref.String())(&err)
	return t.trades.StagedQuantity(ctx, ownerID, ref.StickerID, int16(ref.Rank))
}

func (t *storeTx) AddMessage(ctx context.Context, m *trade.Message) (err error) {
	defer track("add_message", "trade_message", m.TradeID)(&err)
	return t.trades.AddMessage(ctx, fromMessage(m))
}

func (t *storeTx) ListMessages(ctx context.Context, tradeID string) (_ []trade.Message, err error) {
	defer track("list_messages", "trade_message", tradeID)(&err)
	rows, err := t.trades.ListMessages(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	messages := make([]trade.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, toMessage(row))
	}
	return messages, nil
}

func (t *storeTx) ListSessions(ctx context.Context, userID string, includeClosed bool) (_ []trade.Session, err error) {
	defer track("list_sessions", "trade_session", userID)(&err)
	rows, err := t.trades.ListSessions(ctx, userID, includeClosed)
	if err != nil {
		return nil, err
	}
	return toSessions(rows)
}

func (t *storeTx) ListCompleted(ctx context.Context, userID string, limit int) (_ []trade.Session, err error) {
	defer track("list_completed", "trade_session", userID, limit)(&err)
	rows, err := t.trades.ListCompleted(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return toSessions(rows)
}

func (t *storeTx) ListStaleMatching(ctx context.Context, before time.Time) (_ []trade.Session, err error) {
	defer track("list_stale_matching", "trade_session", before)(&err)
	rows, err := t.trades.ListStaleMatching(ctx, before)
	if err != nil {
		return nil, err
	}
	return toSessions(rows)
}

func (t *storeTx) Balance(ctx context.Context, userID string, ref trade.StickerRef) (_ int64, err error) {
	defer track("balance", "user_sticker", userID, ref.String())(&err)
	return t.stickers.GetQuantity(ctx, userID, ref.StickerID, int16(ref.Rank))
}

func (t *storeTx) Transfer(ctx context.Context, fromUserID, toUserID string, ref trade.StickerRef, quantity int64) (err error) {
	defer track("transfer", "user_sticker", fromUserID, toUserID, ref.String(), quantity)(&err)
	if quantity <= 0 {
		return fmt.Errorf("%w: transfer quantity must be positive", trade.ErrInvalidArgument)
	}
	if fromUserID == "" || toUserID == "" || fromUserID == toUserID {
		return fmt.Errorf("%w: transfer needs two distinct users", trade.ErrInvalidArgument)
	}
	return t.stickers.Transfer(ctx, fromUserID, toUserID, ref.StickerID, int16(ref.Rank), quantity)
}

func (t *storeTx) Holdings(ctx context.Context, userID string) (_ []trade.Holding, err error) {
	defer track("holdings", "user_sticker", userID)(&err)
	rows, err := t.stickers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings := make([]trade.Holding, 0, len(rows))
	for _, row := range rows {
		holdings = append(holdings, toHolding(row))
	}
	return holdings, nil
}

var (
	_ trade.Store        = (*Store)(nil)
	_ trade.TradeCounter = (*Store)(nil)
	_ trade.Tx           = (*storeTx)(nil)
)
