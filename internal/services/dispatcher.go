package services

import (
	"context"
	"log"
)

// Dispatcher delivers a follow-up message onto a conversation's channel.
// Implementations must honour ctx: the scheduler bounds every call with a
// timeout and releases the claim when Send returns an error.
type Dispatcher interface {
	Send(ctx context.Context, conversationID, text string) error
}

// LogDispatcher only logs what would have been sent. It is used when no
// delivery channel is configured.
type LogDispatcher struct{}

// Send logs the message and reports success
func (LogDispatcher) Send(_ context.Context, conversationID, text string) error {
	log.Printf("📤 Follow-up (not sent - no channel configured) to %s: %s", conversationID, text)
	return nil
}
