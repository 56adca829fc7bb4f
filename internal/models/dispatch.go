package models

import "time"

// DispatchRecord is one row of the dispatch ledger. The triple
// (conversation, template, epoch) is unique: a template is claimed at most
// once per anchor epoch. SentAt stays nil while the claim is in flight.
type DispatchRecord struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	ConversationID string     `json:"conversation_id" gorm:"not null;uniqueIndex:idx_dispatch_claim,priority:1"`
	TemplateID     uint       `json:"template_id" gorm:"not null;uniqueIndex:idx_dispatch_claim,priority:2"`
	EpochAnchorAt  int64      `json:"epoch_anchor_at" gorm:"not null;uniqueIndex:idx_dispatch_claim,priority:3"`
	ClaimedAt      time.Time  `json:"claimed_at" gorm:"not null;index"`
	SentAt         *time.Time `json:"sent_at"`
}

// IsSent reports whether the claim was confirmed by a successful send
func (d *DispatchRecord) IsSent() bool {
	return d.SentAt != nil
}

// ClaimResult is the outcome of a ledger claim attempt
type ClaimResult int

const (
	Claimed ClaimResult = iota
	AlreadyClaimed
)

func (r ClaimResult) String() string {
	if r == Claimed {
		return "claimed"
	}
	return "already_claimed"
}

// DispatchResult is reported after every dispatch attempt so other parts of
// the platform can display it.
type DispatchResult struct {
	ConversationID string    `json:"conversation_id"`
	TemplateID     uint      `json:"template_id"`
	EpochAnchorAt  int64     `json:"epoch_anchor_at"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}
