package trade

import (
	"context"
	"time"
)

type EventKind string

const (
	EventSessionUpdated EventKind = "session_updated"
	EventItemChanged    EventKind = "item_changed"
	EventMessagePosted  EventKind = "message_posted"
)

type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// Event is published after a state change has been committed. Recipients are
// the session participants at the time of the change.
type Event struct {
	Kind       EventKind  `json:"kind"`
	TradeID    string     `json:"trade_id"`
	Status     Status     `json:"status,omitempty"`
	ItemID     string     `json:"item_id,omitempty"`
	Change     ChangeKind `json:"change,omitempty"`
	MessageID  string     `json:"message_id,omitempty"`
	Recipients []string   `json:"recipients"`
	At         time.Time  `json:"at"`
}

// Notifier delivers events to connected clients. Delivery is best effort; the
// engine logs and drops Publish errors.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }

func sessionEvent(s *Session, at time.Time) Event {
	return Event{
		Kind:       EventSessionUpdated,
		TradeID:    s.ID,
		Status:     s.Status,
		Recipients: s.Participants(),
		At:         at,
	}
}

func itemEvent(s *Session, itemID string, change ChangeKind, at time.Time) Event {
	return Event{
		Kind:       EventItemChanged,
		TradeID:    s.ID,
		Status:     s.Status,
		ItemID:     itemID,
		Change:     change,
		Recipients: s.Participants(),
		At:         at,
	}
}

func messageEvent(s *Session, messageID string, at time.Time) Event {
	return Event{
		Kind:       EventMessagePosted,
		TradeID:    s.ID,
		Status:     s.Status,
		MessageID:  messageID,
		Recipients: s.Participants(),
		At:         at,
	}
}
