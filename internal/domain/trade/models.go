package trade

import (
	"fmt"
	"time"
)

type Rank uint8

const (
	RankBase Rank = iota + 1
	RankSilver
	RankGold
	RankPrism
)

func (r Rank) Valid() bool {
	return r >= RankBase && r <= RankPrism
}

func (r Rank) String() string {
	switch r {
	case RankBase:
		return "base"
	case RankSilver:
		return "silver"
	case RankGold:
		return "gold"
	case RankPrism:
		return "prism"
	}
	return fmt.Sprintf("rank(%d)", uint8(r))
}

// StickerRef identifies a sticker at a specific rank. Two refs with the same
// sticker but different ranks are different holdings.
type StickerRef struct {
	StickerID string `json:"sticker_id"`
	Rank      Rank   `json:"rank"`
}

func (r StickerRef) String() string {
	return r.StickerID + "@" + r.Rank.String()
}

type Session struct {
	ID            string     `json:"id"`
	InitiatorID   string     `json:"initiator_id"`
	PartnerID     string     `json:"partner_id,omitempty"`
	Status        Status     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RoleOf returns the side userID plays in the session.
func (s *Session) RoleOf(userID string) (Role, error) {
	switch {
	case userID == "":
		return 0, ErrNotAParticipant
	case userID == s.InitiatorID:
		return RoleInitiator, nil
	case userID == s.PartnerID:
		return RolePartner, nil
	}
	return 0, ErrNotAParticipant
}

// Counterparty returns the other participant, or "" while no partner joined.
func (s *Session) Counterparty(userID string) string {
	if userID == s.InitiatorID {
		return s.PartnerID
	}
	return s.InitiatorID
}

func (s *Session) Participants() []string {
	if s.PartnerID == "" {
		return []string{s.InitiatorID}
	}
	return []string{s.InitiatorID, s.PartnerID}
}

type Item struct {
	ID        string     `json:"id"`
	TradeID   string     `json:"trade_id"`
	OwnerID   string     `json:"owner_id"`
	Sticker   StickerRef `json:"sticker"`
	Quantity  int64      `json:"quantity"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type MessageType string

const MessageStamp MessageType = "stamp"

type Message struct {
	ID        string      `json:"id"`
	TradeID   string      `json:"trade_id"`
	SenderID  string      `json:"sender_id"`
	Type      MessageType `json:"type"`
	StampID   string      `json:"stamp_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// Holding is one inventory balance row.
type Holding struct {
	Sticker  StickerRef `json:"sticker"`
	Quantity int64      `json:"quantity"`
}

// Transfer records one item moved during settlement.
type Transfer struct {
	ItemID     string     `json:"item_id"`
	FromUserID string     `json:"from_user_id"`
	ToUserID   string     `json:"to_user_id"`
	Sticker    StickerRef `json:"sticker"`
	Quantity   int64      `json:"quantity"`
}

type SettlementResult struct {
	TradeID     string     `json:"trade_id"`
	Transfers   []Transfer `json:"transfers"`
	CompletedAt time.Time  `json:"completed_at"`
}

// View is the read model returned to a participant.
type View struct {
	Session         Session   `json:"session"`
	Role            string    `json:"role"`
	MyItems         []Item    `json:"my_items"`
	PartnerItems    []Item    `json:"partner_items"`
	Messages        []Message `json:"messages"`
	PartnerHoldings []Holding `json:"partner_holdings"`
}
