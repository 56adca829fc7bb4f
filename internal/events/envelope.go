// Package events connects the follow-up service to the platform's RabbitMQ
// event bus: chat inbound events come in, dispatch results go out.
package events

import (
	"time"
)

// Routing keys
const (
	KeyChatInbound        = "chat.inbound.v1"
	KeyFollowUpDispatched = "followup.dispatched.v1"
)

const producer = "convo-followups"

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID string `json:"id"`
	// Emitting service
	Producer *string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. followup.dispatched.v1
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type GenericEnvelope[T any] struct {
	Meta Meta `json:"meta"`
	Data T    `json:"data"`
}

type ConversationKey struct {
	ConversationID string `json:"conversation_id"`
	ProviderChatID string `json:"provider_chat_id"`
}

// ChatInboundV1 is published by the chat receiver for every message a
// counterparty sends.
type ChatInboundV1 struct {
	Conversation ConversationKey `json:"conversation"`
	Kind         string          `json:"kind"`        // "text","image","voice","file","system","interactive"
	AtProvider   time.Time       `json:"at_provider"` // provider timestamp, if given
	ReceivedAt   time.Time       `json:"received_at"` // when the receiver emitted
}

// Timestamp prefers the provider's clock
func (e ChatInboundV1) Timestamp() time.Time {
	if !e.AtProvider.IsZero() {
		return e.AtProvider
	}
	return e.ReceivedAt
}
