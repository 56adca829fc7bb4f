package models

import "time"

// Conversation is the platform's view of a chat thread, as far as follow-ups
// care about it. Contact is the channel address (a WhatsApp number).
type Conversation struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	Contact       string     `json:"contact" gorm:"index"`
	Channel       string     `json:"channel" gorm:"default:'whatsapp'"`
	LastInboundAt *time.Time `json:"last_inbound_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Message directions carried by inbound events
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// InboundEvent is emitted by the chat platform for every message it sees.
// Only inbound messages move a follow-up anchor.
type InboundEvent struct {
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Timestamp      time.Time `json:"timestamp"`
	Contact        string    `json:"contact,omitempty"`
}

// IsInbound reports whether the event came from the counterparty
func (e InboundEvent) IsInbound() bool {
	return e.Direction == DirectionInbound
}
