package trade_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/internal/domain/trade/memory"
	"github.com/stickerbook/trade-engine/internal/domain/trade/mock"
)

// stage pairs alice and bob and puts 2 red bears against 1 gold star on the
// table. Alice owns exactly 2 bears, Bob owns 3 stars.
func stage(t *testing.T, f *fixture) (*trade.Session, *trade.Item, *trade.Item) {
	t.Helper()
	ctx := context.Background()
	f.store.Grant("alice", redBear, 2)
	f.store.Grant("bob", goldStar, 3)
	sess := f.pair(t, "alice", "bob")

	bears, err := f.engine.AddItem(ctx, sess.ID, "alice", redBear, 2)
	require.NoError(t, err)
	star, err := f.engine.AddItem(ctx, sess.ID, "bob", goldStar, 1)
	require.NoError(t, err)
	return sess, bears, star
}

func TestSettlement_HappyPath(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, bears, star := stage(t, f)

	first, err := f.engine.SetReady(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusInitiatorReady, first.Status)

	done, err := f.engine.SetReady(ctx, sess.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	assert.False(t, f.store.HasHolding("alice", redBear), "an emptied holding is removed")
	assert.Equal(t, int64(2), f.store.BalanceOf("bob", redBear))
	assert.Equal(t, int64(1), f.store.BalanceOf("alice", goldStar), "recipient gets a new holding")
	assert.Equal(t, int64(2), f.store.BalanceOf("bob", goldStar))

	assert.Equal(t, int64(1), f.store.TradeCount("alice"))
	assert.Equal(t, int64(1), f.store.TradeCount("bob"))

	result, err := f.engine.Settle(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, result.TradeID)
	assert.ElementsMatch(t, []trade.Transfer{
		{ItemID: bears.ID, FromUserID: "alice", ToUserID: "bob", Sticker: redBear, Quantity: 2},
		{ItemID: star.ID, FromUserID: "bob", ToUserID: "alice", Sticker: goldStar, Quantity: 1},
	}, result.Transfers)

	// Readiness after completion is rejected and moves nothing.
	_, err = f.engine.SetReady(ctx, sess.ID, "alice")
	assert.ErrorIs(t, err, trade.ErrInvalidStateTransition)
	assert.Equal(t, int64(2), f.store.BalanceOf("bob", redBear))
}

func TestSettlement_ZeroItems(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess := f.pair(t, "alice", "bob")

	_, err := f.engine.SetReady(ctx, sess.ID, "bob")
	require.NoError(t, err)
	done, err := f.engine.SetReady(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusCompleted, done.Status)

	result, err := f.engine.Settle(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Transfers)
	assert.Empty(t, f.store.Balances())
}

func TestSettlement_InventoryChangedSinceStaging(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, bears, star := stage(t, f)

	// Both sides lose stock after staging, outside the trade.
	f.store.Grant("alice", redBear, -1)
	f.store.Grant("bob", goldStar, -3)
	before := f.store.Balances()

	_, err := f.engine.SetReady(ctx, sess.ID, "alice")
	require.NoError(t, err)
	_, err = f.engine.SetReady(ctx, sess.ID, "bob")

	var short *trade.InsufficientInventoryError
	require.ErrorAs(t, err, &short)
	assert.ElementsMatch(t, []string{bears.ID, star.ID}, short.ItemIDs())
	assert.Equal(t, before, f.store.Balances())

	view, err := f.engine.GetSession(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusNegotiating, view.Session.Status)
	assert.Contains(t, view.Session.FailureReason, "insufficient inventory")
	assert.Len(t, view.MyItems, 1, "offers stay on the table")

	assert.Zero(t, f.store.TradeCount("alice"))
}

func TestSettlement_FailedTransferRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, _, _ := stage(t, f)
	before := f.store.Balances()

	_, err := f.engine.SetReady(ctx, sess.ID, "bob")
	require.NoError(t, err)

	f.store.FailTransfersAfter(1)
	_, err = f.engine.SetReady(ctx, sess.ID, "alice")
	require.ErrorIs(t, err, memory.ErrInjected)
	assert.Contains(t, err.Error(), "failed to transfer item")

	assert.Equal(t, before, f.store.Balances(), "the first transfer must not survive")
	view, err := f.engine.GetSession(ctx, sess.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusPartnerReady, view.Session.Status)

	f.store.FailTransfersAfter(-1)
	done, err := f.engine.SetReady(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, trade.StatusCompleted, done.Status)
	assert.Equal(t, int64(2), f.store.BalanceOf("bob", redBear))
}

func TestSettle_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, _, _ := stage(t, f)

	_, err := f.engine.SetReady(ctx, sess.ID, "alice")
	require.NoError(t, err)
	_, err = f.engine.SetReady(ctx, sess.ID, "bob")
	require.NoError(t, err)
	after := f.store.Balances()

	cached, err := f.engine.Settle(ctx, sess.ID)
	require.NoError(t, err)
	again, err := f.engine.Settle(ctx, sess.ID)
	require.NoError(t, err)
	assert.Same(t, cached, again)

	// A fresh engine has no cache and rebuilds the result from the items.
	fresh, err := trade.NewEngine(f.store, nil, f.store, trade.Config{})
	require.NoError(t, err)
	rebuilt, err := fresh.Settle(ctx, sess.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, cached.Transfers, rebuilt.Transfers)
	assert.True(t, cached.CompletedAt.Equal(rebuilt.CompletedAt))

	assert.Equal(t, after, f.store.Balances())
	assert.Equal(t, int64(1), f.store.TradeCount("alice"))
}

func TestSettle_Preconditions(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, f *fixture, tradeID string)
		wantStatus trade.Status
		wantReason bool
	}{
		{
			name:       "negotiating",
			setup:      func(t *testing.T, f *fixture, tradeID string) {},
			wantStatus: trade.StatusNegotiating,
		},
		{
			name: "one side ready",
			setup: func(t *testing.T, f *fixture, tradeID string) {
				_, err := f.engine.SetReady(context.Background(), tradeID, "alice")
				require.NoError(t, err)
			},
			wantStatus: trade.StatusNegotiating,
			wantReason: true,
		},
		{
			name: "cancelled",
			setup: func(t *testing.T, f *fixture, tradeID string) {
				_, err := f.engine.Cancel(context.Background(), tradeID, "bob")
				require.NoError(t, err)
			},
			wantStatus: trade.StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			sess, _, _ := stage(t, f)
			tt.setup(t, f, sess.ID)
			before := f.store.Balances()

			_, err := f.engine.Settle(ctx, sess.ID)
			assert.ErrorIs(t, err, trade.ErrPreconditionFailed)

			list, err := f.engine.ListSessions(ctx, "alice", true)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, tt.wantStatus, list[0].Status)
			assert.Equal(t, tt.wantReason, list[0].FailureReason != "")
			assert.Equal(t, before, f.store.Balances())
		})
	}

	t.Run("unknown trade", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.Settle(context.Background(), "missing")
		assert.ErrorIs(t, err, trade.ErrNotFound)
	})
}

func TestSettlement_ConcurrentReady(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t, nil)
		ctx := context.Background()
		sess, _, _ := stage(t, f)

		var wg sync.WaitGroup
		statuses := make([]trade.Status, 2)
		errs := make([]error, 2)
		for i, user := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(i int, user string) {
				defer wg.Done()
				got, err := f.engine.SetReady(ctx, sess.ID, user)
				errs[i] = err
				if got != nil {
					statuses[i] = got.Status
				}
			}(i, user)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		completed := 0
		for _, st := range statuses {
			if st == trade.StatusCompleted {
				completed++
			}
		}
		require.Equal(t, 1, completed, "round %d: exactly one call completes the trade", round)
		require.Equal(t, int64(2), f.store.BalanceOf("bob", redBear))
		require.Equal(t, int64(1), f.store.BalanceOf("alice", goldStar))
		require.Equal(t, int64(1), f.store.TradeCount("bob"))
	}
}

func TestEngine_RetriesConflicts(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.Grant("alice", redBear, 1)
		sess := f.pair(t, "alice", "bob")

		f.store.InjectConflicts(2)
		item, err := f.engine.AddItem(context.Background(), sess.ID, "alice", redBear, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), item.Quantity)
	})

	t.Run("gives up", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.Grant("alice", redBear, 1)
		sess := f.pair(t, "alice", "bob")

		f.store.InjectConflicts(3)
		_, err := f.engine.AddItem(context.Background(), sess.ID, "alice", redBear, 1)
		require.ErrorIs(t, err, trade.ErrConcurrencyConflict)

		view, err := f.engine.GetSession(context.Background(), sess.ID, "alice")
		require.NoError(t, err)
		assert.Empty(t, view.MyItems, "a failed attempt leaves nothing staged")
	})
}

func TestSettlement_CounterFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, _, _ := stage(t, f)
	f.store.FailTradeCounters(true)

	_, err := f.engine.SetReady(ctx, sess.ID, "alice")
	require.NoError(t, err)
	done, err := f.engine.SetReady(ctx, sess.ID, "bob")
	require.NoError(t, err)

	assert.Equal(t, trade.StatusCompleted, done.Status)
	assert.Zero(t, f.store.TradeCount("alice"))
	assert.Equal(t, int64(2), f.store.BalanceOf("bob", redBear))
}

func TestSettlement_CounterCalledForBothSides(t *testing.T) {
	ctrl := gomock.NewController(t)
	counter := mock.NewMockTradeCounter(ctrl)

	store := memory.New()
	engine, err := trade.NewEngine(store, nil, counter, trade.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = engine.RequestMatch(ctx, "alice")
	require.NoError(t, err)
	sess, err := engine.RequestMatch(ctx, "bob")
	require.NoError(t, err)

	counter.EXPECT().IncrementTradeCount(gomock.Any(), "alice").Return(nil).Times(1)
	counter.EXPECT().IncrementTradeCount(gomock.Any(), "bob").Return(nil).Times(1)

	_, err = engine.SetReady(ctx, sess.ID, "alice")
	require.NoError(t, err)
	_, err = engine.SetReady(ctx, sess.ID, "bob")
	require.NoError(t, err)
}

func TestEngine_PublishesAfterCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mock.NewMockNotifier(ctrl)
	f := newFixture(t, notifier)
	ctx := context.Background()
	f.store.Grant("alice", redBear, 1)

	isKind := func(kind trade.EventKind) gomock.Matcher { return eventKind(kind) }

	gomock.InOrder(
		notifier.EXPECT().Publish(gomock.Any(), isKind(trade.EventSessionUpdated)).Return(nil),
		notifier.EXPECT().Publish(gomock.Any(), isKind(trade.EventItemChanged)).Return(nil),
		notifier.EXPECT().Publish(gomock.Any(), isKind(trade.EventSessionUpdated)).Return(nil),
		notifier.EXPECT().Publish(gomock.Any(), isKind(trade.EventItemChanged)).Return(nil),
		notifier.EXPECT().Publish(gomock.Any(), isKind(trade.EventSessionUpdated)).Return(nil),
		notifier.EXPECT().Publish(gomock.Any(), isKind(trade.EventSessionUpdated)).Return(assert.AnError),
	)

	// A lone waiter triggers nothing; the join does.
	sess := f.pair(t, "alice", "bob")

	item, err := f.engine.AddItem(ctx, sess.ID, "alice", redBear, 1)
	require.NoError(t, err)
	_, err = f.engine.SetReady(ctx, sess.ID, "bob")
	require.NoError(t, err)
	// Withdrawing resets Bob's readiness: item then session.
	require.NoError(t, f.engine.RemoveItem(ctx, item.ID, "alice"))

	// Publish failures are logged, never returned.
	_, err = f.engine.Cancel(ctx, sess.ID, "alice")
	require.NoError(t, err)

	// Rejected operations publish nothing.
	_, err = f.engine.Cancel(ctx, sess.ID, "alice")
	require.Error(t, err)
}

// eventKind matches a two-party trade.Event of the given kind.
type eventKind trade.EventKind

func (k eventKind) Matches(x any) bool {
	ev, ok := x.(trade.Event)
	return ok && ev.Kind == trade.EventKind(k) && len(ev.Recipients) == 2
}

func (k eventKind) String() string {
	return "is a two-party " + string(k) + " event"
}

func TestEngine_History(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var completed []string
	for i := 0; i < 3; i++ {
		sess := f.pair(t, "alice", "bob")
		_, err := f.engine.SetReady(ctx, sess.ID, "alice")
		require.NoError(t, err)
		_, err = f.engine.SetReady(ctx, sess.ID, "bob")
		require.NoError(t, err)
		completed = append(completed, sess.ID)
	}
	cancelled := f.pair(t, "alice", "carol")
	_, err := f.engine.Cancel(ctx, cancelled.ID, "carol")
	require.NoError(t, err)

	all, err := f.engine.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{completed[2], completed[1], completed[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	latest, err := f.engine.History(ctx, "bob", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, completed[2], latest[0].ID)

	none, err := f.engine.History(ctx, "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	open, err := f.engine.ListSessions(ctx, "alice", false)
	require.NoError(t, err)
	assert.Empty(t, open)
}
