package trade

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyInSession       = errors.New("user already has an open trade session")
	ErrInvalidStateTransition = errors.New("invalid trade state transition")
	ErrNotAParticipant        = errors.New("user is not a participant of this trade")
	ErrNotItemOwner           = errors.New("trade item belongs to another user")
	ErrPreconditionFailed     = errors.New("both participants must be ready to settle")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrConcurrencyConflict    = errors.New("trade was modified concurrently")
	ErrNotFound               = errors.New("not found")
	ErrInvalidArgument        = errors.New("invalid argument")
)

// AlreadyInSessionError carries the session the caller should resume.
type AlreadyInSessionError struct {
	TradeID string
	Status  Status
}

func (e *AlreadyInSessionError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrAlreadyInSession, e.TradeID, e.Status)
}

func (e *AlreadyInSessionError) Unwrap() error {
	return ErrAlreadyInSession
}

type TransitionError struct {
	From Status
	Op   Op
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", ErrInvalidStateTransition, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// Shortfall is one staged or settling item the owner can no longer cover.
// ItemID is empty when the shortfall was found before the item existed.
type Shortfall struct {
	ItemID    string     `json:"item_id,omitempty"`
	OwnerID   string     `json:"owner_id"`
	Sticker   StickerRef `json:"sticker"`
	Needed    int64      `json:"needed"`
	Available int64      `json:"available"`
}

type InsufficientInventoryError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s needs %d of %s, has %d", s.OwnerID, s.Needed, s.Sticker, s.Available))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientInventory, strings.Join(parts, "; "))
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientInventory
}

// ItemIDs lists the offending trade items.
func (e *InsufficientInventoryError) ItemIDs() []string {
	ids := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		if s.ItemID != "" {
			ids = append(ids, s.ItemID)
		}
	}
	return ids
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound builds the error store implementations return for missing rows.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
