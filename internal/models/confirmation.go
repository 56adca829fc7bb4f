package models

import "time"

// ArmConfirmation is the single-use token a caller must obtain before
// arming a conversation. Arming starts unattended sends, so the toggle alone
// is never enough.
type ArmConfirmation struct {
	Token          string     `json:"token" gorm:"primaryKey"`
	ConversationID string     `json:"conversation_id" gorm:"not null;index"`
	ExpiresAt      time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsValid checks the token can still be used for the conversation
func (c *ArmConfirmation) IsValid(conversationID string, now time.Time) bool {
	return c.UsedAt == nil && c.ConversationID == conversationID && now.Before(c.ExpiresAt)
}
