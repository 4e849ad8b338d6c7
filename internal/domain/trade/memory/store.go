// Package memory is an in-process trade.Store. Transactions are serialised
// by one mutex and rolled back by restoring a snapshot, which makes it
// suitable for tests and local runs without PostgreSQL.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
)

// ErrInjected is returned by operations failed on purpose via the fault hooks.
var ErrInjected = errors.New("memory: injected failure")

type balanceKey struct {
	user string
	ref  trade.StickerRef
}

type waitEntry struct {
	createdAt time.Time
	id        string
	initiator string
}

func lessWait(a, b waitEntry) bool {
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id < b.id
}

type state struct {
	sessions map[string]trade.Session
	items    map[string]trade.Item
	messages map[string][]trade.Message
	balances map[balanceKey]int64
	waiting  *btree.BTreeG[waitEntry]
}

func newState() *state {
	return &state{
		sessions: make(map[string]trade.Session),
		items:    make(map[string]trade.Item),
		messages: make(map[string][]trade.Message),
		balances: make(map[balanceKey]int64),
		waiting:  btree.NewG(16, lessWait),
	}
}

func (st *state) clone() *state {
	messages := make(map[string][]trade.Message, len(st.messages))
	for id, list := range st.messages {
		messages[id] = slices.Clone(list)
	}
	return &state{
		sessions: maps.Clone(st.sessions),
		items:    maps.Clone(st.items),
		messages: messages,
		balances: maps.Clone(st.balances),
		waiting:  st.waiting.Clone(),
	}
}

var (
	_ trade.Store        = (*Store)(nil)
	_ trade.TradeCounter = (*Store)(nil)
)

type Store struct {
	mu    sync.Mutex
	state *state

	transfersLeft  int
	conflictsLeft  int
	tradeCounts    map[string]int64
	countersFailed bool
}

func New() *Store {
	return &Store{
		state:         newState(),
		transfersLeft: -1,
		tradeCounts:   make(map[string]int64),
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx trade.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &tx{store: s, held: true}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) Reader() trade.Tx {
	return &tx{store: s}
}

// Grant adds quantity to a user's balance, as a gacha pull would.
func (s *Store) Grant(userID string, ref trade.StickerRef, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{user: userID, ref: ref}
	s.state.balances[key] += quantity
	if s.state.balances[key] <= 0 {
		delete(s.state.balances, key)
	}
}

// BalanceOf reads a balance outside any transaction.
func (s *Store) BalanceOf(userID string, ref trade.StickerRef) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.balances[balanceKey{user: userID, ref: ref}]
}

// HasHolding reports whether a balance row exists, zero rows included.
func (s *Store) HasHolding(userID string, ref trade.StickerRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.balances[balanceKey{user: userID, ref: ref}]
	return ok
}

// Balances copies every balance, keyed by "user/sticker@rank".
func (s *Store) Balances() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.state.balances))
	for key, qty := range s.state.balances {
		out[key.user+"/"+key.ref.String()] = qty
	}
	return out
}

// FailTransfersAfter lets n more transfers succeed, then fails every later
// one with ErrInjected. A negative n turns the hook off.
func (s *Store) FailTransfersAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfersLeft = n
}

// InjectConflicts makes the next n session updates fail with
// trade.ErrConcurrencyConflict.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictsLeft = n
}

// FailTradeCounters makes IncrementTradeCount fail.
func (s *Store) FailTradeCounters(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countersFailed = fail
}

func (s *Store) IncrementTradeCount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countersFailed {
		return ErrInjected
	}
	s.tradeCounts[userID]++
	return nil
}

func (s *Store) TradeCount(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradeCounts[userID]
}

// tx implements trade.Tx over the store state. When held is false every call
// takes the store mutex itself.
type tx struct {
	store *Store
	held  bool
}

func (t *tx) guard() func() {
	if t.held {
		return func() {}
	}
	t.store.mu.Lock()
	return t.store.mu.Unlock
}

func (t *tx) st() *state {
	return t.store.state
}

func copySession(s trade.Session) *trade.Session {
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		s.CompletedAt = &completed
	}
	return &s
}

func (t *tx) LockMatchQueue(context.Context) error {
	return nil
}

func (t *tx) GetSession(_ context.Context, tradeID string, _ bool) (*trade.Session, error) {
	defer t.guard()()
	sess, ok := t.st().sessions[tradeID]
	if !ok {
		return nil, trade.NotFound("trade session", tradeID)
	}
	return copySession(sess), nil
}

func (t *tx) FindOpenSession(_ context.Context, userID string) (*trade.Session, error) {
	defer t.guard()()
	var found *trade.Session
	for _, sess := range t.st().sessions {
		if sess.Status.IsTerminal() || (sess.InitiatorID != userID && sess.PartnerID != userID) {
			continue
		}
		if found == nil || sess.CreatedAt.Before(found.CreatedAt) {
			found = copySession(sess)
		}
	}
	return found, nil
}

func (t *tx) ClaimOldestWaiting(_ context.Context, userID string, now time.Time) (*trade.Session, error) {
	defer t.guard()()
	st := t.st()

	var claimed *waitEntry
	st.waiting.Ascend(func(e waitEntry) bool {
		if e.initiator == userID {
			return true
		}
		claimed = &e
		return false
	})
	if claimed == nil {
		return nil, nil
	}

	st.waiting.Delete(*claimed)
	sess := st.sessions[claimed.id]
	sess.PartnerID = userID
	sess.Status = trade.StatusNegotiating
	sess.Version++
	sess.UpdatedAt = now
	st.sessions[sess.ID] = sess
	return copySession(sess), nil
}

func (t *tx) CreateSession(_ context.Context, sess *trade.Session) error {
	defer t.guard()()
	st := t.st()
	if _, exists := st.sessions[sess.ID]; exists {
		return fmt.Errorf("trade session %s already exists", sess.ID)
	}
	st.sessions[sess.ID] = *copySession(*sess)
	if sess.Status == trade.StatusMatching {
		st.waiting.ReplaceOrInsert(waitEntry{createdAt: sess.CreatedAt, id: sess.ID, initiator: sess.InitiatorID})
	}
	return nil
}

func (t *tx) UpdateSession(_ context.Context, sess *trade.Session, expectedVersion int64) error {
	defer t.guard()()
	st := t.st()

	if t.store.conflictsLeft > 0 {
		t.store.conflictsLeft--
		return fmt.Errorf("injected: %w", trade.ErrConcurrencyConflict)
	}

	current, ok := st.sessions[sess.ID]
	if !ok {
		return trade.NotFound("trade session", sess.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("trade session %s at version %d, expected %d: %w",
			sess.ID, current.Version, expectedVersion, trade.ErrConcurrencyConflict)
	}
	if current.Status == trade.StatusMatching && sess.Status != trade.StatusMatching {
		st.waiting.Delete(waitEntry{createdAt: current.CreatedAt, id: current.ID, initiator: current.InitiatorID})
	}
	st.sessions[sess.ID] = *copySession(*sess)
	return nil
}

func sortItems(items []trade.Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func (t *tx) ListItems(_ context.Context, tradeID string) ([]trade.Item, error) {
	defer t.guard()()
	items := make([]trade.Item, 0)
	for _, item := range t.st().items {
		if item.TradeID == tradeID {
			items = append(items, item)
		}
	}
	sortItems(items)
	return items, nil
}

func (t *tx) GetItem(_ context.Context, itemID string) (*trade.Item, error) {
	defer t.guard()()
	item, ok := t.st().items[itemID]
	if !ok {
		return nil, trade.NotFound("trade item", itemID)
	}
	return &item, nil
}

func (t *tx) FindItem(_ context.Context, tradeID, ownerID string, ref trade.StickerRef) (*trade.Item, error) {
	defer t.guard()()
	for _, item := range t.st().items {
		if item.TradeID == tradeID && item.OwnerID == ownerID && item.Sticker == ref {
			return &item, nil
		}
	}
	return nil, nil
}

func (t *tx) SaveItem(_ context.Context, item *trade.Item) error {
	defer t.guard()()
	if item.Quantity <= 0 {
		return fmt.Errorf("trade item %s: %w: quantity must be positive", item.ID, trade.ErrInvalidArgument)
	}
	t.st().items[item.ID] = *item
	return nil
}

func (t *tx) DeleteItem(_ context.Context, itemID string) error {
	defer t.guard()()
	if _, ok := t.st().items[itemID]; !ok {
		return trade.NotFound("trade item", itemID)
	}
	delete(t.st().items, itemID)
	return nil
}

func (t *tx) StagedQuantity(_ context.Context, ownerID string, ref trade.StickerRef) (int64, error) {
	defer t.guard()()
	st := t.st()
	var total int64
	for _, item := range st.items {
		if item.OwnerID != ownerID || item.Sticker != ref {
			continue
		}
		if sess, ok := st.sessions[item.TradeID]; ok && !sess.Status.IsTerminal() {
			total += item.Quantity
		}
	}
	return total, nil
}

func (t *tx) AddMessage(_ context.Context, m *trade.Message) error {
	defer t.guard()()
	st := t.st()
	st.messages[m.TradeID] = append(st.messages[m.TradeID], *m)
	return nil
}

func (t *tx) ListMessages(_ context.Context, tradeID string) ([]trade.Message, error) {
	defer t.guard()()
	msgs := slices.Clone(t.st().messages[tradeID])
	if msgs == nil {
		msgs = []trade.Message{}
	}
	return msgs, nil
}

func (t *tx) ListSessions(_ context.Context, userID string, includeClosed bool) ([]trade.Session, error) {
	defer t.guard()()
	out := make([]trade.Session, 0)
	for _, sess := range t.st().sessions {
		if sess.InitiatorID != userID && sess.PartnerID != userID {
			continue
		}
		if !includeClosed && sess.Status.IsTerminal() {
			continue
		}
		out = append(out, *copySession(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (t *tx) ListCompleted(_ context.Context, userID string, limit int) ([]trade.Session, error) {
	defer t.guard()()
	out := make([]trade.Session, 0)
	for _, sess := range t.st().sessions {
		if sess.Status != trade.StatusCompleted || (sess.InitiatorID != userID && sess.PartnerID != userID) {
			continue
		}
		out = append(out, *copySession(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(*out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) ListStaleMatching(_ context.Context, before time.Time) ([]trade.Session, error) {
	defer t.guard()()
	st := t.st()
	out := make([]trade.Session, 0)
	st.waiting.AscendLessThan(waitEntry{createdAt: before}, func(e waitEntry) bool {
		out = append(out, *copySession(st.sessions[e.id]))
		return true
	})
	return out, nil
}

func (t *tx) Balance(_ context.Context, userID string, ref trade.StickerRef) (int64, error) {
	defer t.guard()()
	return t.st().balances[balanceKey{user: userID, ref: ref}], nil
}

func (t *tx) Transfer(_ context.Context, fromUserID, toUserID string, ref trade.StickerRef, quantity int64) error {
	defer t.guard()()
	st := t.st()

	if quantity <= 0 {
		return fmt.Errorf("%w: transfer quantity must be positive", trade.ErrInvalidArgument)
	}
	if fromUserID == "" || toUserID == "" || fromUserID == toUserID {
		return fmt.Errorf("%w: transfer needs two distinct users", trade.ErrInvalidArgument)
	}
	if t.store.transfersLeft == 0 {
		return ErrInjected
	}

	from := balanceKey{user: fromUserID, ref: ref}
	if st.balances[from] < quantity {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d",
			trade.ErrInsufficientInventory, fromUserID, st.balances[from], ref, quantity)
	}
	if t.store.transfersLeft > 0 {
		t.store.transfersLeft--
	}

	st.balances[from] -= quantity
	if st.balances[from] == 0 {
		delete(st.balances, from)
	}
	to := balanceKey{user: toUserID, ref: ref}
	st.balances[to] += quantity
	return nil
}

func (t *tx) Holdings(_ context.Context, userID string) ([]trade.Holding, error) {
	defer t.guard()()
	out := make([]trade.Holding, 0)
	for key, qty := range t.st().balances {
		if key.user == userID {
			out = append(out, trade.Holding{Sticker: key.ref, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sticker.StickerID != out[j].Sticker.StickerID {
			return out[i].Sticker.StickerID < out[j].Sticker.StickerID
		}
		return out[i].Sticker.Rank < out[j].Sticker.Rank
	})
	return out, nil
}
