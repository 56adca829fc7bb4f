package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

// AnchorTracker keeps each attachment's anchor at the counterparty's latest
// inbound message. Writes use max semantics, so replays and out-of-order
// delivery never move an anchor backwards.
type AnchorTracker struct {
	store storage.Store
}

// NewAnchorTracker creates a new anchor tracker
func NewAnchorTracker(store storage.Store) *AnchorTracker {
	return &AnchorTracker{store: store}
}

// OnInboundMessage advances the conversation's anchor to ts. It reports
// whether a new epoch started; false when there is no attachment or ts is
// not newer than the current anchor.
func (t *AnchorTracker) OnInboundMessage(ctx context.Context, conversationID string, ts time.Time) (bool, error) {
	advanced, err := t.store.AdvanceAnchor(ctx, conversationID, ts)
	if err != nil {
		return false, err
	}
	if advanced {
		log.Printf("Follow-up cadence restarted for %s (anchor %s)", conversationID, models.NormalizeTime(ts).Format(time.RFC3339))
	}
	return advanced, nil
}

// HandleEvent applies a message event from the chat platform. Outbound
// messages are ignored.
func (t *AnchorTracker) HandleEvent(ctx context.Context, ev models.InboundEvent) error {
	if !ev.IsInbound() {
		return nil
	}
	if strings.TrimSpace(ev.ConversationID) == "" {
		return &followup.ValidationError{Field: "conversation_id", Reason: "is required"}
	}
	if ev.Timestamp.IsZero() {
		return &followup.ValidationError{Field: "timestamp", Reason: "is required"}
	}

	if err := t.ensureConversation(ctx, ev.ConversationID, ev.Contact); err != nil {
		return err
	}
	if err := t.store.RecordInbound(ctx, ev.ConversationID, ev.Timestamp); err != nil {
		return err
	}
	_, err := t.OnInboundMessage(ctx, ev.ConversationID, ev.Timestamp)
	return err
}

// HandleContactMessage applies an inbound message identified only by the
// sender's address, as delivered by the WhatsApp webhook. Unknown contacts
// get a new conversation. It returns the conversation id.
func (t *AnchorTracker) HandleContactMessage(ctx context.Context, contact string, at time.Time) (string, error) {
	conv, err := t.store.GetConversationByContact(ctx, contact)
	switch {
	case errors.Is(err, followup.ErrNotFound):
		conv = &models.Conversation{ID: uuid.NewString(), Contact: contact, Channel: "whatsapp"}
		if err := t.store.SaveConversation(ctx, conv); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	}

	return conv.ID, t.HandleEvent(ctx, models.InboundEvent{
		ConversationID: conv.ID,
		Direction:      models.DirectionInbound,
		Timestamp:      at,
	})
}

func (t *AnchorTracker) ensureConversation(ctx context.Context, id, contact string) error {
	conv, err := t.store.GetConversation(ctx, id)
	if errors.Is(err, followup.ErrNotFound) {
		return t.store.SaveConversation(ctx, &models.Conversation{ID: id, Contact: contact, Channel: "whatsapp"})
	}
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if contact != "" && conv.Contact != contact {
		conv.Contact = contact
		return t.store.SaveConversation(ctx, conv)
	}
	return nil
}
