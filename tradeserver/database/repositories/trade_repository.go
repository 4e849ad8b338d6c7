package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/stickerbook/trade-engine/tradeserver/database/models"
)

// matchQueueLockKey is the advisory lock that serialises matchmaking.
const matchQueueLockKey int64 = 0x5717c4e7

type TradeRepository interface {
	LockMatchQueue(ctx context.Context) error

	GetSession(ctx context.Context, id string, forUpdate bool) (*models.TradeSession, error)
	FindOpenSession(ctx context.Context, userID string) (*models.TradeSession, error)
	ClaimOldestWaiting(ctx context.Context, userID string, now time.Time) (*models.TradeSession, error)
	CreateSession(ctx context.Context, s *models.TradeSession) error
	UpdateSession(ctx context.Context, s *models.TradeSession, expectedVersion int64) error
	ListSessions(ctx context.Context, userID string, includeClosed bool) ([]*models.TradeSession, error)
	ListCompleted(ctx context.Context, userID string, limit int) ([]*models.TradeSession, error)
	ListStaleMatching(ctx context.Context, before time.Time) ([]*models.TradeSession, error)

	GetItem(ctx context.Context, id string) (*models.TradeItem, error)
	FindItem(ctx context.Context, tradeID, ownerID, stickerID string, rank int16) (*models.TradeItem, error)
	ListItems(ctx context.Context, tradeID string) ([]*models.TradeItem, error)
	SaveItem(ctx context.Context, item *models.TradeItem) error
	DeleteItem(ctx context.Context, id string) error
	StagedQuantity(ctx context.Context, ownerID, stickerID string, rank int16) (int64, error)

	AddMessage(ctx context.Context, m *models.TradeMessage) error
	ListMessages(ctx context.Context, tradeID string) ([]*models.TradeMessage, error)
}

type tradeRepository struct {
	*BaseRepository
}

func NewTradeRepository(db bun.IDB) TradeRepository {
	return &tradeRepository{BaseRepository: NewBaseRepository(db)}
}

// LockMatchQueue takes a transaction-scoped advisory lock. Outside a
// transaction it is released immediately and protects nothing.
func (r *tradeRepository) LockMatchQueue(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", matchQueueLockKey)
	return r.HandleError("lock_match_queue", "trade_session", err)
}

func (r *tradeRepository) GetSession(ctx context.Context, id string, forUpdate bool) (*models.TradeSession, error) {
	sess := new(models.TradeSession)
	q := r.db.NewSelect().
		Model(sess).
		Where("id = ?", id)
	if forUpdate {
		q = q.For("UPDATE")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, r.HandleErrorWithID("get", "trade_session", id, err)
	}
	return sess, nil
}

func (r *tradeRepository) FindOpenSession(ctx context.Context, userID string) (*models.TradeSession, error) {
	sess := new(models.TradeSession)
	err := r.db.NewSelect().
		Model(sess).
		Where("initiator_id = ? OR partner_id = ?", userID, userID).
		Where("status NOT IN (?)", bun.In(models.ClosedStatuses)).
		OrderExpr("created_at ASC").
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.HandleErrorWithID("find_open", "trade_session", userID, err)
	}
	return sess, nil
}

func (r *tradeRepository) claimQuery(sess *models.TradeSession, userID string, now time.Time) *bun.UpdateQuery {
	oldest := r.db.NewSelect().
		Model((*models.TradeSession)(nil)).
		Column("id").
		Where("status = ?", models.SessionMatching).
		Where("initiator_id <> ?", userID).
		OrderExpr("created_at ASC, id ASC").
		Limit(1).
		For("UPDATE SKIP LOCKED")

	return r.db.NewUpdate().
		Model(sess).
		Set("partner_id = ?", userID).
		Set("status = ?", models.SessionNegotiating).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = (?)", oldest).
		Returning("*")
}

// ClaimOldestWaiting pairs userID with the longest waiting session in one
// UPDATE, so a waiter can only ever be claimed once.
func (r *tradeRepository) ClaimOldestWaiting(ctx context.Context, userID string, now time.Time) (*models.TradeSession, error) {
	sess := new(models.TradeSession)
	err := r.claimQuery(sess, userID, now).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.HandleErrorWithID("claim", "trade_session", userID, err)
	}
	return sess, nil
}

func (r *tradeRepository) CreateSession(ctx context.Context, s *models.TradeSession) error {
	_, err := r.db.NewInsert().Model(s).Exec(ctx)
	return r.HandleErrorWithID("create", "trade_session", s.ID, err)
}

func (r *tradeRepository) updateSessionQuery(s *models.TradeSession, expectedVersion int64) *bun.UpdateQuery {
	return r.db.NewUpdate().
		Model(s).
		Column("partner_id", "status", "failure_reason", "version", "updated_at", "completed_at").
		Where("id = ?", s.ID).
		Where("version = ?", expectedVersion)
}

// UpdateSession writes s if the stored row is still at expectedVersion.
func (r *tradeRepository) UpdateSession(ctx context.Context, s *models.TradeSession, expectedVersion int64) error {
	result, err := r.updateSessionQuery(s, expectedVersion).Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("update", "trade_session", s.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return r.HandleErrorWithID("update", "trade_session", s.ID, err)
	}
	if rows == 0 {
		return &ConflictError{Entity: "trade_session", Field: "version", Value: expectedVersion}
	}
	return nil
}

func (r *tradeRepository) ListSessions(ctx context.Context, userID string, includeClosed bool) ([]*models.TradeSession, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var sessions []*models.TradeSession
	q := r.db.NewSelect().
		Model(&sessions).
		Where("initiator_id = ? OR partner_id = ?", userID, userID).
		OrderExpr("created_at DESC")
	if !includeClosed {
		q = q.Where("status NOT IN (?)", bun.In(models.ClosedStatuses))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, r.HandleError("list", "trade_session", err)
	}
	return sessions, nil
}

func (r *tradeRepository) ListCompleted(ctx context.Context, userID string, limit int) ([]*models.TradeSession, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var sessions []*models.TradeSession
	err := r.db.NewSelect().
		Model(&sessions).
		Where("initiator_id = ? OR partner_id = ?", userID, userID).
		Where("status = ?", models.SessionCompleted).
		OrderExpr("completed_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("list_completed", "trade_session", err)
	}
	return sessions, nil
}

func (r *tradeRepository) ListStaleMatching(ctx context.Context, before time.Time) ([]*models.TradeSession, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var sessions []*models.TradeSession
	err := r.db.NewSelect().
		Model(&sessions).
		Where("status = ?", models.SessionMatching).
		Where("created_at < ?", before).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("list_stale", "trade_session", err)
	}
	return sessions, nil
}

func (r *tradeRepository) GetItem(ctx context.Context, id string) (*models.TradeItem, error) {
	item := new(models.TradeItem)
	if err := r.db.NewSelect().Model(item).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, r.HandleErrorWithID("get", "trade_item", id, err)
	}
	return item, nil
}

func (r *tradeRepository) FindItem(ctx context.Context, tradeID, ownerID, stickerID string, rank int16) (*models.TradeItem, error) {
	item := new(models.TradeItem)
	err := r.db.NewSelect().
		Model(item).
		Where("trade_id = ?", tradeID).
		Where("owner_id = ?", ownerID).
		Where("sticker_id = ? AND rank = ?", stickerID, rank).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.HandleErrorWithID("find", "trade_item", tradeID, err)
	}
	return item, nil
}

func (r *tradeRepository) ListItems(ctx context.Context, tradeID string) ([]*models.TradeItem, error) {
	var items []*models.TradeItem
	err := r.db.NewSelect().
		Model(&items).
		Where("trade_id = ?", tradeID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("list", "trade_item", tradeID, err)
	}
	return items, nil
}

func (r *tradeRepository) SaveItem(ctx context.Context, item *models.TradeItem) error {
	_, err := r.db.NewInsert().
		Model(item).
		On("CONFLICT (id) DO UPDATE").
		Set("quantity = EXCLUDED.quantity").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return r.HandleErrorWithID("save", "trade_item", item.ID, err)
}

func (r *tradeRepository) DeleteItem(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.TradeItem)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return r.HandleErrorWithID("delete", "trade_item", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &NotFoundError{Entity: "trade_item", ID: id}
	}
	return nil
}

// StagedQuantity sums what ownerID has offered of one sticker across every
// session that is still open.
func (r *tradeRepository) StagedQuantity(ctx context.Context, ownerID, stickerID string, rank int16) (int64, error) {
	var total int64
	err := r.stagedQuery(ownerID, stickerID, rank).Scan(ctx, &total)
	if err != nil {
		return 0, r.HandleErrorWithID("staged_quantity", "trade_item", ownerID, err)
	}
	return total, nil
}

func (r *tradeRepository) stagedQuery(ownerID, stickerID string, rank int16) *bun.SelectQuery {
	return r.db.NewSelect().
		TableExpr("trade_items AS ti").
		Join("JOIN trade_sessions AS ts ON ts.id = ti.trade_id").
		ColumnExpr("COALESCE(SUM(ti.quantity), 0)").
		Where("ti.owner_id = ?", ownerID).
		Where("ti.sticker_id = ? AND ti.rank = ?", stickerID, rank).
		Where("ts.status NOT IN (?)", bun.In(models.ClosedStatuses))
}

func (r *tradeRepository) AddMessage(ctx context.Context, m *models.TradeMessage) error {
	_, err := r.db.NewInsert().Model(m).Exec(ctx)
	return r.HandleErrorWithID("create", "trade_message", m.ID, err)
}

func (r *tradeRepository) ListMessages(ctx context.Context, tradeID string) ([]*models.TradeMessage, error) {
	var messages []*models.TradeMessage
	err := r.db.NewSelect().
		Model(&messages).
		Where("trade_id = ?", tradeID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("list", "trade_message", tradeID, err)
	}
	return messages, nil
}
