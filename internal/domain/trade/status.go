package trade

import (
	"fmt"
)

// Status is the lifecycle state of a trade session. The zero value is not a
// valid status.
type Status uint8

const (
	StatusMatching Status = iota + 1
	StatusNegotiating
	StatusInitiatorReady
	StatusPartnerReady
	StatusCompleted
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusMatching:       "matching",
	StatusNegotiating:    "negotiating",
	StatusInitiatorReady: "initiator_ready",
	StatusPartnerReady:   "partner_ready",
	StatusCompleted:      "completed",
	StatusCancelled:      "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus is the inverse of String.
func ParseStatus(raw string) (Status, error) {
	for status, name := range statusNames {
		if name == raw {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown trade status %q", raw)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusMatching, StatusNegotiating, StatusInitiatorReady, StatusPartnerReady:
		return false
	}
	return false
}

func (s Status) IsReady() bool {
	switch s {
	case StatusInitiatorReady, StatusPartnerReady:
		return true
	case StatusMatching, StatusNegotiating, StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// Op names a mutation so transition errors can say what was refused.
type Op uint8

const (
	OpJoin Op = iota + 1
	OpCancelMatch
	OpAddItem
	OpRemoveItem
	OpSetReady
	OpCancel
	OpSendStamp
	OpSettle
	OpUnready
)

func (o Op) String() string {
	switch o {
	case OpJoin:
		return "join"
	case OpCancelMatch:
		return "cancel_match"
	case OpAddItem:
		return "add_item"
	case OpRemoveItem:
		return "remove_item"
	case OpSetReady:
		return "set_ready"
	case OpCancel:
		return "cancel"
	case OpSendStamp:
		return "send_stamp"
	case OpSettle:
		return "settle"
	case OpUnready:
		return "unready"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Allows reports whether op may be applied to a session in status s.
func (s Status) Allows(op Op) bool {
	switch s {
	case StatusMatching:
		return op == OpJoin || op == OpCancelMatch || op == OpCancel || op == OpSendStamp
	case StatusNegotiating:
		return op == OpAddItem || op == OpRemoveItem || op == OpSetReady || op == OpUnready || op == OpCancel || op == OpSendStamp
	case StatusInitiatorReady, StatusPartnerReady:
		return op == OpAddItem || op == OpRemoveItem || op == OpSetReady || op == OpUnready || op == OpCancel || op == OpSendStamp || op == OpSettle
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// Role is a participant's side of a session.
type Role uint8

const (
	RoleInitiator Role = iota + 1
	RolePartner
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RolePartner:
		return "partner"
	}
	return "unknown"
}

// ReadyBy returns the status after role confirms. Completed means both sides
// are now ready and settlement must run. Returning s itself means the role
// had already confirmed.
func (s Status) ReadyBy(role Role) (Status, error) {
	if !s.Allows(OpSetReady) {
		return s, &TransitionError{From: s, Op: OpSetReady}
	}
	switch s {
	case StatusNegotiating:
		if role == RoleInitiator {
			return StatusInitiatorReady, nil
		}
		return StatusPartnerReady, nil
	case StatusInitiatorReady:
		if role == RoleInitiator {
			return s, nil
		}
		return StatusCompleted, nil
	case StatusPartnerReady:
		if role == RolePartner {
			return s, nil
		}
		return StatusCompleted, nil
	case StatusMatching, StatusCompleted, StatusCancelled:
	}
	return s, &TransitionError{From: s, Op: OpSetReady}
}

// Unready returns the status after role withdraws its confirmation. Only the
// side that confirmed can withdraw; otherwise s is returned unchanged.
func (s Status) Unready(role Role) (Status, error) {
	if !s.Allows(OpUnready) {
		return s, &TransitionError{From: s, Op: OpUnready}
	}
	if (s == StatusInitiatorReady && role == RoleInitiator) || (s == StatusPartnerReady && role == RolePartner) {
		return StatusNegotiating, nil
	}
	return s, nil
}

// AfterOfferChange is the status once either side edits the offer: any
// readiness is withdrawn.
func (s Status) AfterOfferChange() Status {
	if s.IsReady() {
		return StatusNegotiating
	}
	return s
}
