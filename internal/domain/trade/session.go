package trade

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stickerbook/trade-engine/tradeserver/config"
)

func validateRef(ref StickerRef) error {
	id := strings.TrimSpace(ref.StickerID)
	if id == "" {
		return invalidArgument("sticker id is required")
	}
	if len(id) > config.MaxStickerIDLength {
		return invalidArgument("sticker id too long")
	}
	if !ref.Rank.Valid() {
		return invalidArgument("unknown rank %d", ref.Rank)
	}
	return nil
}

// AddItem stages quantity more of ref on the caller's side. Any readiness is
// withdrawn so both sides must confirm the new terms.
func (e *Engine) AddItem(ctx context.Context, tradeID, userID string, ref StickerRef, quantity int64) (*Item, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if quantity <= 0 || quantity > config.MaxItemQuantity {
		return nil, invalidArgument("quantity must be between 1 and %d", config.MaxItemQuantity)
	}

	var out *Item
	err := e.mutate(ctx, "add_item", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		sess, _, err := lockParticipant(ctx, tx, tradeID, userID)
		if err != nil {
			return err
		}
		if !sess.Status.Allows(OpAddItem) {
			return &TransitionError{From: sess.Status, Op: OpAddItem}
		}

		balance, err := tx.Balance(ctx, userID, ref)
		if err != nil {
			return err
		}
		staged, err := tx.StagedQuantity(ctx, userID, ref)
		if err != nil {
			return err
		}
		item, err := tx.FindItem(ctx, tradeID, userID, ref)
		if err != nil {
			return err
		}

		if staged+quantity > balance {
			shortfall := Shortfall{OwnerID: userID, Sticker: ref, Needed: staged + quantity, Available: balance}
			if item != nil {
				shortfall.ItemID = item.ID
			}
			return &InsufficientInventoryError{Shortfalls: []Shortfall{shortfall}}
		}

		now := e.now()
		change := ChangeUpdated
		if item == nil {
			change = ChangeAdded
			item = &Item{
				ID:        e.cfg.NewID(),
				TradeID:   tradeID,
				OwnerID:   userID,
				Sticker:   ref,
				CreatedAt: now,
			}
		}
		item.Quantity += quantity
		item.UpdatedAt = now
		if err := tx.SaveItem(ctx, item); err != nil {
			return err
		}

		prev := sess.Status
		if err := e.save(ctx, tx, sess, sess.Status.AfterOfferChange(), "", now); err != nil {
			return err
		}

		out = item
		emit(itemEvent(sess, item.ID, change, now))
		if prev != sess.Status {
			emit(sessionEvent(sess, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveItem withdraws one of the caller's own items.
func (e *Engine) RemoveItem(ctx context.Context, itemID, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	return e.mutate(ctx, "remove_item", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		sess, _, err := lockParticipant(ctx, tx, item.TradeID, userID)
		if err != nil {
			return err
		}
		if item.OwnerID != userID {
			return ErrNotItemOwner
		}
		if !sess.Status.Allows(OpRemoveItem) {
			return &TransitionError{From: sess.Status, Op: OpRemoveItem}
		}

		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}

		now := e.now()
		prev := sess.Status
		if err := e.save(ctx, tx, sess, sess.Status.AfterOfferChange(), "", now); err != nil {
			return err
		}

		emit(itemEvent(sess, itemID, ChangeRemoved, now))
		if prev != sess.Status {
			emit(sessionEvent(sess, now))
		}
		return nil
	})
}

// SetReady confirms the caller's side. When the other side has already
// confirmed, the trade settles inside the same transaction.
func (e *Engine) SetReady(ctx context.Context, tradeID, userID string) (*Session, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var (
		out      *Session
		settled  *SettlementResult
		observed int64
	)
	err := e.mutate(ctx, "set_ready", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		out, settled, observed = nil, nil, 0

		sess, role, err := lockParticipant(ctx, tx, tradeID, userID)
		if err != nil {
			return err
		}
		next, err := sess.Status.ReadyBy(role)
		if err != nil {
			return err
		}
		if next == sess.Status {
			out = sess
			return nil
		}

		now := e.now()
		if next == StatusCompleted {
			observed = sess.Version
			result, err := e.settleLocked(ctx, tx, sess, now)
			if err != nil {
				return err
			}
			settled = result
		} else if err := e.save(ctx, tx, sess, next, "", now); err != nil {
			return err
		}

		out = sess
		emit(sessionEvent(sess, now))
		return nil
	})
	if err != nil {
		if observed != 0 && errors.Is(err, ErrInsufficientInventory) {
			e.recordSettlementFailure(ctx, tradeID, observed, err)
		}
		return nil, err
	}

	if settled != nil {
		e.afterSettlement(ctx, out, settled)
	}
	return out, nil
}

// Unready withdraws the caller's confirmation. Withdrawing when the caller has
// not confirmed returns the session unchanged.
func (e *Engine) Unready(ctx context.Context, tradeID, userID string) (*Session, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var out *Session
	err := e.mutate(ctx, "unready", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		out = nil

		sess, role, err := lockParticipant(ctx, tx, tradeID, userID)
		if err != nil {
			return err
		}
		next, err := sess.Status.Unready(role)
		if err != nil {
			return err
		}
		if next == sess.Status {
			out = sess
			return nil
		}

		now := e.now()
		if err := e.save(ctx, tx, sess, next, "", now); err != nil {
			return err
		}
		out = sess
		emit(sessionEvent(sess, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel ends the session for both sides. Staged items stay with their owners.
func (e *Engine) Cancel(ctx context.Context, tradeID, userID string) (*Session, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var out *Session
	err := e.mutate(ctx, "cancel", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		sess, _, err := lockParticipant(ctx, tx, tradeID, userID)
		if err != nil {
			return err
		}
		if !sess.Status.Allows(OpCancel) {
			return &TransitionError{From: sess.Status, Op: OpCancel}
		}

		now := e.now()
		if err := e.save(ctx, tx, sess, StatusCancelled, "", now); err != nil {
			return err
		}
		out = sess
		emit(sessionEvent(sess, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) SendStamp(ctx context.Context, tradeID, userID, stampID string) (*Message, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	stampID = strings.TrimSpace(stampID)
	if stampID == "" || len(stampID) > config.MaxStampIDLength {
		return nil, invalidArgument("stamp id must be 1 to %d characters", config.MaxStampIDLength)
	}

	var out *Message
	err := e.mutate(ctx, "send_stamp", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		sess, _, err := lockParticipant(ctx, tx, tradeID, userID)
		if err != nil {
			return err
		}
		if !sess.Status.Allows(OpSendStamp) {
			return &TransitionError{From: sess.Status, Op: OpSendStamp}
		}

		now := e.now()
		msg := &Message{
			ID:        e.cfg.NewID(),
			TradeID:   tradeID,
			SenderID:  userID,
			Type:      MessageStamp,
			StampID:   stampID,
			CreatedAt: now,
		}
		if err := tx.AddMessage(ctx, msg); err != nil {
			return err
		}
		out = msg
		emit(messageEvent(sess, msg.ID, now))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// recordSettlementFailure sends a session whose settlement was rejected back
// to Negotiating, unless it changed since the attempt was made.
func (e *Engine) recordSettlementFailure(ctx context.Context, tradeID string, version int64, cause error) {
	err := e.mutate(ctx, "settlement_rollback", "", func(ctx context.Context, tx Tx, emit func(Event)) error {
		sess, err := tx.GetSession(ctx, tradeID, true)
		if err != nil {
			return err
		}
		if sess.Version != version || sess.Status.IsTerminal() {
			return nil
		}

		now := e.now()
		if err := e.save(ctx, tx, sess, StatusNegotiating, cause.Error(), now); err != nil {
			return err
		}
		emit(sessionEvent(sess, now))
		return nil
	})
	if err != nil {
		slog.Error("Failed to record settlement failure",
			slog.String("type", "error"),
			slog.String("trade_id", tradeID),
			slog.Any("error", err),
		)
	}
}
