package trade

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type holdingKey struct {
	owner string
	ref   StickerRef
}

// settleLocked moves every staged item to the counterparty and completes the
// session. sess must be locked by tx. Balances are checked for all items
// before the first transfer, and any error leaves tx to be rolled back.
func (e *Engine) settleLocked(ctx context.Context, tx Tx, sess *Session, now time.Time) (*SettlementResult, error) {
	items, err := tx.ListItems(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	needed := make(map[holdingKey]int64)
	order := make([]holdingKey, 0, len(items))
	for _, item := range items {
		key := holdingKey{owner: item.OwnerID, ref: item.Sticker}
		if _, seen := needed[key]; !seen {
			order = append(order, key)
		}
		needed[key] += item.Quantity
	}

	short := make(map[holdingKey]int64)
	for _, key := range order {
		balance, err := tx.Balance(ctx, key.owner, key.ref)
		if err != nil {
			return nil, err
		}
		if balance < needed[key] {
			short[key] = balance
		}
	}
	if len(short) > 0 {
		shortfalls := make([]Shortfall, 0, len(short))
		for _, item := range items {
			key := holdingKey{owner: item.OwnerID, ref: item.Sticker}
			if available, ok := short[key]; ok {
				shortfalls = append(shortfalls, Shortfall{
					ItemID:    item.ID,
					OwnerID:   item.OwnerID,
					Sticker:   item.Sticker,
					Needed:    needed[key],
					Available: available,
				})
			}
		}
		return nil, &InsufficientInventoryError{Shortfalls: shortfalls}
	}

	result := &SettlementResult{
		TradeID:     sess.ID,
		Transfers:   make([]Transfer, 0, len(items)),
		CompletedAt: now,
	}
	for _, item := range items {
		to := sess.Counterparty(item.OwnerID)
		if err := tx.Transfer(ctx, item.OwnerID, to, item.Sticker, item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to transfer item %s: %w", item.ID, err)
		}
		result.Transfers = append(result.Transfers, Transfer{
			ItemID:     item.ID,
			FromUserID: item.OwnerID,
			ToUserID:   to,
			Sticker:    item.Sticker,
			Quantity:   item.Quantity,
		})
	}

	if err := e.save(ctx, tx, sess, StatusCompleted, "", now); err != nil {
		return nil, err
	}
	return result, nil
}

// afterSettlement runs the post-commit side effects of a completed trade.
func (e *Engine) afterSettlement(ctx context.Context, sess *Session, result *SettlementResult) {
	e.results.Add(sess.ID, result)

	slog.Info("Trade settled",
		slog.String("type", "trade"),
		slog.String("trade_id", sess.ID),
		slog.String("initiator_id", sess.InitiatorID),
		slog.String("partner_id", sess.PartnerID),
		slog.Int("transfers", len(result.Transfers)),
	)

	if e.counter == nil {
		return
	}
	for _, userID := range sess.Participants() {
		if err := e.counter.IncrementTradeCount(ctx, userID); err != nil {
			slog.Warn("Failed to increment trade count",
				slog.String("type", "trade"),
				slog.String("trade_id", sess.ID),
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
	}
}

// Settle returns the outcome of a completed trade without applying anything
// twice. Settlement itself only runs from SetReady; calling Settle on a
// session that is not completed fails with ErrPreconditionFailed, and a
// half-ready session is sent back to Negotiating.
func (e *Engine) Settle(ctx context.Context, tradeID string) (*SettlementResult, error) {
	if cached, ok := e.results.Get(tradeID); ok {
		return cached.(*SettlementResult), nil
	}

	var (
		result       *SettlementResult
		precondition error
	)
	err := e.mutate(ctx, "settle", "", func(ctx context.Context, tx Tx, emit func(Event)) error {
		result, precondition = nil, nil

		sess, err := tx.GetSession(ctx, tradeID, true)
		if err != nil {
			return err
		}

		switch {
		case sess.Status == StatusCompleted:
			items, err := tx.ListItems(ctx, tradeID)
			if err != nil {
				return err
			}
			result = rebuildResult(sess, items)
			return nil
		case sess.Status.IsReady():
			precondition = fmt.Errorf("%w: only one side is ready", ErrPreconditionFailed)
			now := e.now()
			if err := e.save(ctx, tx, sess, StatusNegotiating, precondition.Error(), now); err != nil {
				return err
			}
			emit(sessionEvent(sess, now))
			return nil
		default:
			return fmt.Errorf("%w: session is %s", ErrPreconditionFailed, sess.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	if precondition != nil {
		return nil, precondition
	}

	e.results.Add(tradeID, result)
	return result, nil
}

func rebuildResult(sess *Session, items []Item) *SettlementResult {
	result := &SettlementResult{
		TradeID:   sess.ID,
		Transfers: make([]Transfer, 0, len(items)),
	}
	if sess.CompletedAt != nil {
		result.CompletedAt = *sess.CompletedAt
	}
	for _, item := range items {
		result.Transfers = append(result.Transfers, Transfer{
			ItemID:     item.ID,
			FromUserID: item.OwnerID,
			ToUserID:   sess.Counterparty(item.OwnerID),
			Sticker:    item.Sticker,
			Quantity:   item.Quantity,
		})
	}
	return result
}
