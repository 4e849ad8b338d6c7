package trade_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/internal/domain/trade/memory"
)

var (
	redBear  = trade.StickerRef{StickerID: "red-bear", Rank: trade.RankBase}
	goldStar = trade.StickerRef{StickerID: "star", Rank: trade.RankGold}
	prismCat = trade.StickerRef{StickerID: "cat", Rank: trade.RankPrism}
)

// stepClock advances by a millisecond on every read so creation order is
// always distinguishable.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store  *memory.Store
	engine *trade.Engine
	clock  *stepClock
}

func newFixture(t testing.TB, notifier trade.Notifier) *fixture {
	t.Helper()
	store := memory.New()
	clock := newStepClock()

	var seq int
	var mu sync.Mutex
	engine, err := trade.NewEngine(store, notifier, store, trade.Config{
		RetryBaseDelay: time.Millisecond,
		Now:            clock.Now,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%04d", seq)
		},
	})
	require.NoError(t, err)

	return &fixture{store: store, engine: engine, clock: clock}
}

// pair matches alice and bob and returns their Negotiating session.
func (f *fixture) pair(t testing.TB, initiator, partner string) *trade.Session {
	t.Helper()
	ctx := context.Background()

	waiting, err := f.engine.RequestMatch(ctx, initiator)
	require.NoError(t, err)
	require.Equal(t, trade.StatusMatching, waiting.Status)

	joined, err := f.engine.RequestMatch(ctx, partner)
	require.NoError(t, err)
	require.Equal(t, waiting.ID, joined.ID)
	require.Equal(t, trade.StatusNegotiating, joined.Status)
	return joined
}

// recorder is a Notifier that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []trade.Event
}

func (r *recorder) Publish(_ context.Context, ev trade.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []trade.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]trade.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
