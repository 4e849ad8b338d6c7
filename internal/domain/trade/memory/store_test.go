package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
)

var (
	bear = trade.StickerRef{StickerID: "bear", Rank: trade.RankBase}
	star = trade.StickerRef{StickerID: "star", Rank: trade.RankSilver}
	t0   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func waiting(id, initiator string, at time.Time) *trade.Session {
	return &trade.Session{
		ID:          id,
		InitiatorID: initiator,
		Status:      trade.StatusMatching,
		Version:     1,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestStore_InTxRollsBack(t *testing.T) {
	s := New()
	s.Grant("alice", bear, 3)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx trade.Tx) error {
		if err := tx.CreateSession(ctx, waiting("t1", "alice", t0)); err != nil {
			return err
		}
		if err := tx.Transfer(ctx, "alice", "bob", bear, 2); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, int64(3), s.BalanceOf("alice", bear))
	assert.False(t, s.HasHolding("bob", bear))
	_, err = s.Reader().GetSession(ctx, "t1", false)
	assert.ErrorIs(t, err, trade.ErrNotFound)

	claimed, err := s.Reader().ClaimOldestWaiting(ctx, "bob", t0)
	require.NoError(t, err)
	assert.Nil(t, claimed, "the rolled back waiter must leave the queue too")
}

func TestStore_InTxCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(context.Context, trade.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStore_ClaimOldestWaiting(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := s.Reader()

	require.NoError(t, r.CreateSession(ctx, waiting("late", "carol", t0.Add(time.Minute))))
	require.NoError(t, r.CreateSession(ctx, waiting("early", "alice", t0)))

	claimed, err := r.ClaimOldestWaiting(ctx, "alice", t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "late", claimed.ID, "a user never claims their own waiting session")
	assert.Equal(t, "alice", claimed.PartnerID)
	assert.Equal(t, trade.StatusNegotiating, claimed.Status)
	assert.Equal(t, int64(2), claimed.Version)

	claimed, err = r.ClaimOldestWaiting(ctx, "bob", t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "early", claimed.ID)

	claimed, err = r.ClaimOldestWaiting(ctx, "dave", t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestStore_UpdateSessionVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := s.Reader()
	require.NoError(t, r.CreateSession(ctx, waiting("t1", "alice", t0)))

	sess, err := r.GetSession(ctx, "t1", true)
	require.NoError(t, err)
	sess.Status = trade.StatusCancelled
	sess.Version = 2

	err = r.UpdateSession(ctx, sess, 5)
	assert.ErrorIs(t, err, trade.ErrConcurrencyConflict)
	require.NoError(t, r.UpdateSession(ctx, sess, 1))

	stale, err := r.ListStaleMatching(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale, "a cancelled waiter leaves the queue")

	s.InjectConflicts(1)
	sess.Version = 3
	assert.ErrorIs(t, r.UpdateSession(ctx, sess, 2), trade.ErrConcurrencyConflict)
	assert.NoError(t, r.UpdateSession(ctx, sess, 2))
}

func TestStore_Transfer(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		qty      int64
		wantErr  error
		wantFrom int64
		wantTo   int64
	}{
		{name: "partial", from: "alice", to: "bob", qty: 2, wantFrom: 1, wantTo: 2},
		{name: "everything", from: "alice", to: "bob", qty: 3, wantFrom: 0, wantTo: 3},
		{name: "too many", from: "alice", to: "bob", qty: 4, wantErr: trade.ErrInsufficientInventory, wantFrom: 3},
		{name: "zero", from: "alice", to: "bob", qty: 0, wantErr: trade.ErrInvalidArgument, wantFrom: 3},
		{name: "to self", from: "alice", to: "alice", qty: 1, wantErr: trade.ErrInvalidArgument, wantFrom: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Grant("alice", bear, 3)

			err := s.Reader().Transfer(context.Background(), tt.from, tt.to, bear, tt.qty)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantFrom, s.BalanceOf("alice", bear))
			assert.Equal(t, tt.wantFrom > 0, s.HasHolding("alice", bear))
			if tt.from != tt.to {
				assert.Equal(t, tt.wantTo, s.BalanceOf("bob", bear))
			}
		})
	}
}

func TestStore_FailTransfersAfter(t *testing.T) {
	s := New()
	s.Grant("alice", bear, 5)
	ctx := context.Background()
	r := s.Reader()

	s.FailTransfersAfter(1)
	require.NoError(t, r.Transfer(ctx, "alice", "bob", bear, 1))
	assert.ErrorIs(t, r.Transfer(ctx, "alice", "bob", bear, 1), ErrInjected)

	s.FailTransfersAfter(-1)
	assert.NoError(t, r.Transfer(ctx, "alice", "bob", bear, 1))
}

func TestStore_StagedQuantityIgnoresClosedSessions(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := s.Reader()

	open := &trade.Session{ID: "open", InitiatorID: "alice", PartnerID: "bob", Status: trade.StatusNegotiating, Version: 2, CreatedAt: t0}
	closed := &trade.Session{ID: "closed", InitiatorID: "alice", PartnerID: "carol", Status: trade.StatusCancelled, Version: 3, CreatedAt: t0}
	require.NoError(t, r.CreateSession(ctx, open))
	require.NoError(t, r.CreateSession(ctx, closed))

	require.NoError(t, r.SaveItem(ctx, &trade.Item{ID: "i1", TradeID: "open", OwnerID: "alice", Sticker: bear, Quantity: 2, CreatedAt: t0}))
	require.NoError(t, r.SaveItem(ctx, &trade.Item{ID: "i2", TradeID: "closed", OwnerID: "alice", Sticker: bear, Quantity: 5, CreatedAt: t0}))
	require.NoError(t, r.SaveItem(ctx, &trade.Item{ID: "i3", TradeID: "open", OwnerID: "alice", Sticker: star, Quantity: 1, CreatedAt: t0}))

	staged, err := r.StagedQuantity(ctx, "alice", bear)
	require.NoError(t, err)
	assert.Equal(t, int64(2), staged)

	assert.ErrorIs(t, r.SaveItem(ctx, &trade.Item{ID: "i4", TradeID: "open", OwnerID: "alice", Sticker: bear}), trade.ErrInvalidArgument)

	found, err := r.FindItem(ctx, "open", "alice", star)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "i3", found.ID)

	items, err := r.ListItems(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i3"}, []string{items[0].ID, items[1].ID})
}

func TestStore_Holdings(t *testing.T) {
	s := New()
	s.Grant("alice", star, 1)
	s.Grant("alice", bear, 2)
	s.Grant("alice", trade.StickerRef{StickerID: "bear", Rank: trade.RankGold}, 1)
	s.Grant("bob", bear, 9)

	got, err := s.Reader().Holdings(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []trade.Holding{
		{Sticker: bear, Quantity: 2},
		{Sticker: trade.StickerRef{StickerID: "bear", Rank: trade.RankGold}, Quantity: 1},
		{Sticker: star, Quantity: 1},
	}, got)
}

func TestStore_TradeCounters(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.IncrementTradeCount(ctx, "alice"))
	require.NoError(t, s.IncrementTradeCount(ctx, "alice"))
	assert.Equal(t, int64(2), s.TradeCount("alice"))

	s.FailTradeCounters(true)
	assert.ErrorIs(t, s.IncrementTradeCount(ctx, "alice"), ErrInjected)
	assert.Equal(t, int64(2), s.TradeCount("alice"))
}
