package models

import "time"

// Attachment links a conversation to a follow-up category and carries the
// automation state. There is at most one per conversation.
type Attachment struct {
	ConversationID string `json:"conversation_id" gorm:"primaryKey"`
	CategoryID     uint   `json:"category_id" gorm:"not null;index"`
	AutoSend       bool   `json:"auto_send" gorm:"not null;default:false;index:idx_attachments_armed,priority:1"`
	Completed      bool   `json:"completed" gorm:"not null;default:false;index:idx_attachments_armed,priority:2"`

	// AnchorAt is the reference time all template delays are measured from.
	// Epoch is the same instant in Unix milliseconds; every anchor and
	// completion write is conditional on it.
	AnchorAt time.Time `json:"anchor_at" gorm:"not null"`
	Epoch    int64     `json:"epoch" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attachment states as shown to operators
const (
	StateAttached  = "attached"
	StateArmed     = "armed"
	StateCompleted = "completed"
)

// State derives the state machine position from the stored flags.
func (a *Attachment) State() string {
	switch {
	case a.AutoSend && a.Completed:
		return StateCompleted
	case a.AutoSend:
		return StateArmed
	default:
		return StateAttached
	}
}

// SetAnchor moves the anchor and keeps Epoch in step with it.
func (a *Attachment) SetAnchor(t time.Time) {
	a.AnchorAt = NormalizeTime(t)
	a.Epoch = a.AnchorAt.UnixMilli()
}

// NormalizeTime converts t to the precision stored for anchors: UTC,
// whole milliseconds.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// EpochOf returns the ledger epoch key for an anchor time.
func EpochOf(t time.Time) int64 {
	return NormalizeTime(t).UnixMilli()
}
