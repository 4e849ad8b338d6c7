package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/stickerbook/trade-engine/tradeserver/config"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// BaseRepository provides common repository functionality. db is either the
// pool-backed *bun.DB or a bun.Tx, so repositories work inside transactions.
type BaseRepository struct {
	db             bun.IDB
	defaultTimeout time.Duration
}

func NewBaseRepository(db bun.IDB) *BaseRepository {
	return &BaseRepository{
		db:             db,
		defaultTimeout: config.DefaultQueryTimeout,
	}
}

// RepositoryError represents a repository-level error
type RepositoryError struct {
	Operation string
	Entity    string
	Err       error
}

func (re *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s for %s: %v", re.Operation, re.Entity, re.Err)
}

func (re *RepositoryError) Unwrap() error {
	return re.Err
}

// NotFoundError represents an entity not found error
type NotFoundError struct {
	Entity string
	ID     any
}

func (nfe *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", nfe.Entity, nfe.ID)
}

// ConflictError reports a write that lost against a concurrent one: a stale
// version, a serialization failure or a duplicate key.
type ConflictError struct {
	Entity string
	Field  string
	Value  any
	Err    error
}

func (ce *ConflictError) Error() string {
	if ce.Err != nil {
		return fmt.Sprintf("%s conflict on %s %v: %v", ce.Entity, ce.Field, ce.Value, ce.Err)
	}
	return fmt.Sprintf("%s conflict on %s %v", ce.Entity, ce.Field, ce.Value)
}

func (ce *ConflictError) Unwrap() error {
	return ce.Err
}

// InsufficientStockError is returned when a transfer would drive a stack
// below zero.
type InsufficientStockError struct {
	UserID    string
	StickerID string
	Rank      int16
	Needed    int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("user %s holds %d of %s@%d, needs %d", e.UserID, e.Available, e.StickerID, e.Rank, e.Needed)
}

func (br *BaseRepository) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, br.defaultTimeout)
}

// HandleError standardizes error handling across repositories
func (br *BaseRepository) HandleError(operation, entity string, err error) error {
	return br.HandleErrorWithID(operation, entity, "unknown", err)
}

// HandleErrorWithID standardizes error handling with specific ID
func (br *BaseRepository) HandleErrorWithID(operation, entity string, id any, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Entity: entity, ID: id}
	}

	switch SQLState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return &ConflictError{Entity: entity, Field: "transaction", Value: operation, Err: err}
	case codeUniqueViolation:
		return &ConflictError{Entity: entity, Field: "key", Value: id, Err: err}
	}

	return &RepositoryError{
		Operation: operation,
		Entity:    entity,
		Err:       err,
	}
}

// SQLState extracts the PostgreSQL error code from either driver, or "".
func SQLState(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

// IsRetryable reports whether PostgreSQL aborted the transaction because of a
// concurrent one. Such errors surface at COMMIT as well as on statements.
func IsRetryable(err error) bool {
	switch SQLState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
