package trade

import (
	"context"
	"time"
)

// RequestMatch returns the caller's open Matching or Negotiating session,
// joins the oldest waiting user, or parks the caller as a new waiter.
func (e *Engine) RequestMatch(ctx context.Context, userID string) (*Session, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var out *Session
	err := e.mutate(ctx, "request_match", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		out = nil
		if err := tx.LockMatchQueue(ctx); err != nil {
			return err
		}

		open, err := tx.FindOpenSession(ctx, userID)
		if err != nil {
			return err
		}
		if open != nil {
			if open.Status == StatusMatching || open.Status == StatusNegotiating {
				out = open
				return nil
			}
			return &AlreadyInSessionError{TradeID: open.ID, Status: open.Status}
		}

		now := e.now()
		claimed, err := tx.ClaimOldestWaiting(ctx, userID, now)
		if err != nil {
			return err
		}
		if claimed != nil {
			out = claimed
			emit(sessionEvent(claimed, now))
			return nil
		}

		waiting := &Session{
			ID:          e.cfg.NewID(),
			InitiatorID: userID,
			Status:      StatusMatching,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateSession(ctx, waiting); err != nil {
			return err
		}
		out = waiting
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelMatch withdraws a waiting session that has not found a partner yet.
func (e *Engine) CancelMatch(ctx context.Context, tradeID, userID string) (*Session, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var out *Session
	err := e.mutate(ctx, "cancel_match", userID, func(ctx context.Context, tx Tx, emit func(Event)) error {
		sess, _, err := lockParticipant(ctx, tx, tradeID, userID)
		if err != nil {
			return err
		}
		if !sess.Status.Allows(OpCancelMatch) {
			return &TransitionError{From: sess.Status, Op: OpCancelMatch}
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

// expireMatch cancels tradeID if it is still waiting and was created before
// cutoff. It reports whether the session was cancelled.
func (e *Engine) expireMatch(ctx context.Context, tradeID string, cutoff time.Time) (bool, error) {
	expired := false
	err := e.mutate(ctx, "expire_match", "", func(ctx context.Context, tx Tx, emit func(Event)) error {
		expired = false
		sess, err := tx.GetSession(ctx, tradeID, true)
		if err != nil {
			return err
		}
		if sess.Status != StatusMatching || sess.CreatedAt.After(cutoff) {
			return nil
		}

		now := e.now()
		if err := e.save(ctx, tx, sess, StatusCancelled, "matching expired", now); err != nil {
			return err
		}
		expired = true
		emit(sessionEvent(sess, now))
		return nil
	})
	return expired, err
}
