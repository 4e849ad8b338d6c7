package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/stickerbook/trade-engine/tradeserver/config"
	"github.com/stickerbook/trade-engine/tradeserver/logger"
)

//go:generate mockgen -destination=mock/service.go -package=mock . Service
//go:generate mockgen -destination=mock/notifier.go -package=mock . Notifier
//go:generate mockgen -destination=mock/trade_counter.go -package=mock . TradeCounter

type Service interface {
	RequestMatch(ctx context.Context, userID string) (*Session, error)
	CancelMatch(ctx context.Context, tradeID, userID string) (*Session, error)
	AddItem(ctx context.Context, tradeID, userID string, ref StickerRef, quantity int64) (*Item, error)
	RemoveItem(ctx context.Context, itemID, userID string) error
	SetReady(ctx context.Context, tradeID, userID string) (*Session, error)
	Unready(ctx context.Context, tradeID, userID string) (*Session, error)
	Cancel(ctx context.Context, tradeID, userID string) (*Session, error)
	SendStamp(ctx context.Context, tradeID, userID, stampID string) (*Message, error)
	GetSession(ctx context.Context, tradeID, viewerID string) (*View, error)
	ListSessions(ctx context.Context, userID string, includeClosed bool) ([]Session, error)
	History(ctx context.Context, userID string, limit int) ([]Session, error)
}

type Config struct {
	MaxRetries      int
	RetryBaseDelay  time.Duration
	HistoryLimit    int
	ResultCacheSize int

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = config.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = config.RetryBaseDelay
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = config.DefaultHistoryLimit
	}
	if c.ResultCacheSize <= 0 {
		c.ResultCacheSize = config.SettlementCacheSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

var _ Service = (*Engine)(nil)

type Engine struct {
	store    Store
	notifier Notifier
	counter  TradeCounter
	results  *lru.Cache
	cfg      Config
}

// NewEngine wires the engine. notifier and counter may be nil.
func NewEngine(store Store, notifier Notifier, counter TradeCounter, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("trade: store is required")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	cfg = cfg.withDefaults()

	results, err := lru.New(cfg.ResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement cache: %w", err)
	}

	return &Engine{
		store:    store,
		notifier: notifier,
		counter:  counter,
		results:  results,
		cfg:      cfg,
	}, nil
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC()
}

// mutate runs fn in a transaction, retrying on ErrConcurrencyConflict, and
// publishes the events fn emitted once the transaction has committed.
func (e *Engine) mutate(ctx context.Context, op, userID string, fn func(ctx context.Context, tx Tx, emit func(Event)) error) error {
	start := time.Now()
	var events []Event

	err := e.withRetry(ctx, op, func() error {
		events = events[:0]
		return e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			return fn(ctx, tx, func(ev Event) { events = append(events, ev) })
		})
	})
	logger.LogTrade(op, userID, time.Since(start), err)
	if err != nil {
		return err
	}

	e.publish(ctx, events)
	return nil
}

func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrConcurrencyConflict) || attempt == e.cfg.MaxRetries {
			return err
		}

		slog.Warn("Retrying trade operation after conflict",
			slog.String("type", "trade"),
			slog.String("operation", op),
			slog.Int("attempt", attempt),
		)

		delay := e.cfg.RetryBaseDelay*time.Duration(attempt) + time.Duration(rand.Int64N(int64(e.cfg.RetryBaseDelay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (e *Engine) publish(ctx context.Context, events []Event) {
	for _, ev := range events {
		if err := e.notifier.Publish(ctx, ev); err != nil {
			slog.Warn("Failed to publish trade event",
				slog.String("type", "trade"),
				slog.String("trade_id", ev.TradeID),
				slog.String("kind", string(ev.Kind)),
				slog.Any("error", err),
			)
		}
	}
}

// save moves sess to next and writes it guarded by the version it was read at.
func (e *Engine) save(ctx context.Context, tx Tx, sess *Session, next Status, reason string, now time.Time) error {
	expected := sess.Version
	from := sess.Status

	sess.Status = next
	sess.FailureReason = reason
	sess.Version++
	sess.UpdatedAt = now
	if next == StatusCompleted {
		completed := now
		sess.CompletedAt = &completed
	}

	if err := tx.UpdateSession(ctx, sess, expected); err != nil {
		return err
	}

	if from != next {
		slog.Info("Trade session transitioned",
			slog.String("type", "trade"),
			slog.String("trade_id", sess.ID),
			slog.String("from", from.String()),
			slog.String("to", next.String()),
		)
	}
	return nil
}

// lockParticipant loads the session for update and checks userID takes part.
func lockParticipant(ctx context.Context, tx Tx, tradeID, userID string) (*Session, Role, error) {
	sess, err := tx.GetSession(ctx, tradeID, true)
	if err != nil {
		return nil, 0, err
	}
	role, err := sess.RoleOf(userID)
	if err != nil {
		return nil, 0, err
	}
	return sess, role, nil
}

func requireUser(userID string) error {
	if userID == "" {
		return invalidArgument("user id is required")
	}
	return nil
}
