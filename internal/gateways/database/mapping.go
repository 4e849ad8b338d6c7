package database

import (
	"errors"
	"fmt"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/tradeserver/database/models"
	"github.com/stickerbook/trade-engine/tradeserver/database/repositories"
)

func toSession(m *models.TradeSession) (*trade.Session, error) {
	status, err := trade.ParseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("trade_session %s: %w", m.ID, err)
	}
	return &trade.Session{
		ID:            m.ID,
		InitiatorID:   m.InitiatorID,
		PartnerID:     m.PartnerID,
		Status:        status,
		FailureReason: m.FailureReason,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		CompletedAt:   m.CompletedAt,
	}, nil
}

func fromSession(s *trade.Session) *models.TradeSession {
	return &models.TradeSession{
		ID:            s.ID,
		InitiatorID:   s.InitiatorID,
		PartnerID:     s.PartnerID,
		Status:        s.Status.String(),
		FailureReason: s.FailureReason,
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		CompletedAt:   s.CompletedAt,
	}
}

func toSessions(rows []*models.TradeSession) ([]trade.Session, error) {
	out := make([]trade.Session, 0, len(rows))
	for _, row := range rows {
		s, err := toSession(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func toItem(m *models.TradeItem) *trade.Item {
	return &trade.Item{
		ID:        m.ID,
		TradeID:   m.TradeID,
		OwnerID:   m.OwnerID,
		Sticker:   trade.StickerRef{StickerID: m.StickerID, Rank: trade.Rank(m.Rank)},
		Quantity:  m.Quantity,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromItem(i *trade.Item) *models.TradeItem {
	return &models.TradeItem{
		ID:        i.ID,
		TradeID:   i.TradeID,
		OwnerID:   i.OwnerID,
		StickerID: i.Sticker.StickerID,
		Rank:      int16(i.Sticker.Rank),
		Quantity:  i.Quantity,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func toMessage(m *models.TradeMessage) trade.Message {
	return trade.Message{
		ID:        m.ID,
		TradeID:   m.TradeID,
		SenderID:  m.SenderID,
		Type:      trade.MessageType(m.Type),
		StampID:   m.StampID,
		CreatedAt: m.CreatedAt,
	}
}

func fromMessage(m *trade.Message) *models.TradeMessage {
	return &models.TradeMessage{
		ID:        m.ID,
		TradeID:   m.TradeID,
		SenderID:  m.SenderID,
		Type:      string(m.Type),
		StampID:   m.StampID,
		CreatedAt: m.CreatedAt,
	}
}

func toHolding(m *models.UserSticker) trade.Holding {
	return trade.Holding{
		Sticker:  trade.StickerRef{StickerID: m.StickerID, Rank: trade.Rank(m.Rank)},
		Quantity: m.Quantity,
	}
}

// translateError turns repository errors into the trade package sentinels so
// the engine can classify them without knowing about SQL.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var nfe *repositories.NotFoundError
	var ce *repositories.ConflictError
	var ise *repositories.InsufficientStockError
	switch {
	case errors.As(err, &nfe):
		return trade.NotFound(nfe.Entity, fmt.Sprint(nfe.ID))
	case errors.As(err, &ce):
		return fmt.Errorf("%w: %v", trade.ErrConcurrencyConflict, ce)
	case errors.As(err, &ise):
		return fmt.Errorf("%w: %v", trade.ErrInsufficientInventory, ise)
	}
	return err
}
