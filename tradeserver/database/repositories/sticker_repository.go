package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/stickerbook/trade-engine/tradeserver/database/models"
)

// StickerRepository reads and moves user_stickers rows.
type StickerRepository interface {
	GetQuantity(ctx context.Context, userID, stickerID string, rank int16) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*models.UserSticker, error)
	// Transfer must run inside a transaction; it locks the sender's row.
	Transfer(ctx context.Context, fromUserID, toUserID, stickerID string, rank int16, quantity int64) error
	Add(ctx context.Context, userID, stickerID string, rank int16, quantity int64) error
}

type stickerRepository struct {
	*BaseRepository
}

func NewStickerRepository(db bun.IDB) StickerRepository {
	return &stickerRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *stickerRepository) GetQuantity(ctx context.Context, userID, stickerID string, rank int16) (int64, error) {
	var quantity int64
	err := r.db.NewSelect().
		Model((*models.UserSticker)(nil)).
		Column("quantity").
		Where("user_id = ? AND sticker_id = ? AND rank = ?", userID, stickerID, rank).
		Scan(ctx, &quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, r.HandleErrorWithID("get_quantity", "user_sticker", userID, err)
	}
	return quantity, nil
}

func (r *stickerRepository) ListByUser(ctx context.Context, userID string) ([]*models.UserSticker, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var stickers []*models.UserSticker
	err := r.db.NewSelect().
		Model(&stickers).
		Where("user_id = ?", userID).
		OrderExpr("sticker_id ASC, rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("list", "user_sticker", userID, err)
	}
	return stickers, nil
}

func (r *stickerRepository) Transfer(ctx context.Context, fromUserID, toUserID, stickerID string, rank int16, quantity int64) error {
	from := new(models.UserSticker)
	err := r.db.NewSelect().
		Model(from).
		Where("user_id = ? AND sticker_id = ? AND rank = ?", fromUserID, stickerID, rank).
		For("UPDATE").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return r.HandleErrorWithID("transfer", "user_sticker", fromUserID, err)
	}
	if from.Quantity < quantity {
		return &InsufficientStockError{
			UserID:    fromUserID,
			StickerID: stickerID,
			Rank:      rank,
			Needed:    quantity,
			Available: from.Quantity,
		}
	}

	if from.Quantity == quantity {
		_, err = r.dropStackQuery(from.ID).Exec(ctx)
		if err != nil {
			return r.HandleErrorWithID("transfer", "user_sticker", fromUserID, err)
		}
		slog.Debug("Removed emptied sticker stack",
			slog.String("type", "db"),
			slog.String("user_id", fromUserID),
			slog.String("sticker_id", stickerID),
		)
	} else {
		result, err := r.debitQuery(from.ID, quantity, time.Now()).Exec(ctx)
		if err != nil {
			return r.HandleErrorWithID("transfer", "user_sticker", fromUserID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return &ConflictError{Entity: "user_sticker", Field: "quantity", Value: from.ID}
		}
	}

	return r.Add(ctx, toUserID, stickerID, rank, quantity)
}

func (r *stickerRepository) dropStackQuery(id int64) *bun.DeleteQuery {
	return r.db.NewDelete().
		Model((*models.UserSticker)(nil)).
		Where("id = ?", id)
}

// debitQuery only matches while the stack still covers quantity.
func (r *stickerRepository) debitQuery(id int64, quantity int64, now time.Time) *bun.UpdateQuery {
	return r.db.NewUpdate().
		Model((*models.UserSticker)(nil)).
		Set("quantity = quantity - ?", quantity).
		Set("updated_at = ?", now).
		Where("id = ? AND quantity >= ?", id, quantity)
}

// Add credits quantity to a stack, creating it if needed.
func (r *stickerRepository) Add(ctx context.Context, userID, stickerID string, rank int16, quantity int64) error {
	_, err := r.addQuery(userID, stickerID, rank, quantity, time.Now()).Exec(ctx)
	return r.HandleErrorWithID("add", "user_sticker", userID, err)
}

func (r *stickerRepository) addQuery(userID, stickerID string, rank int16, quantity int64, now time.Time) *bun.InsertQuery {
	return r.db.NewInsert().
		Model(&models.UserSticker{
			UserID:        userID,
			StickerID:     stickerID,
			Rank:          rank,
			Quantity:      quantity,
			TotalAcquired: quantity,
			Obtained:      now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}).
		On("CONFLICT (user_id, sticker_id, rank) DO UPDATE").
		Set("quantity = us.quantity + EXCLUDED.quantity").
		Set("total_acquired = us.total_acquired + EXCLUDED.quantity").
		Set("updated_at = EXCLUDED.updated_at")
}
