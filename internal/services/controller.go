package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

// Controller is the operator-facing switch over a conversation's follow-up:
// attach, confirm-then-arm, disarm and detach.
type Controller struct {
	store           storage.Store
	confirmationTTL time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// AttachmentStatus is the read model shown next to a conversation
type AttachmentStatus struct {
	Attachment   *models.Attachment        `json:"attachment"`
	State        string                    `json:"state"`
	Templates    []followup.TemplateStatus `json:"templates"`
	NextUnlockAt *time.Time                `json:"next_unlock_at,omitempty"`
}

// NewController creates a new controller
func NewController(store storage.Store, confirmationTTL time.Duration) *Controller {
	return &Controller{
		store:           store,
		confirmationTTL: confirmationTTL,
		Now:             time.Now,
	}
}

// Attach links a conversation to a category with auto_send off. Attaching to
// the category already attached is a no-op; attaching to another category
// replaces the attachment with nothing carried over.
func (c *Controller) Attach(ctx context.Context, conversationID string, categoryID uint) (*models.Attachment, error) {
	if conversationID == "" {
		return nil, &followup.ValidationError{Field: "conversation_id", Reason: "is required"}
	}
	if _, err := c.store.GetCategory(ctx, categoryID); err != nil {
		if errors.Is(err, followup.ErrNotFound) {
			return nil, &followup.ValidationError{Field: "category_id", Reason: fmt.Sprintf("category %d does not exist", categoryID)}
		}
		return nil, err
	}

	existing, err := c.store.GetAttachment(ctx, conversationID)
	switch {
	case err == nil && existing.CategoryID == categoryID:
		return existing, nil
	case err != nil && !errors.Is(err, followup.ErrNotFound):
		return nil, err
	}

	anchor, err := c.initialAnchor(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// Ledger rows of earlier attachments must never match the new epoch.
	latest, err := c.store.LatestEpoch(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if models.EpochOf(anchor) <= latest {
		anchor = time.UnixMilli(latest + 1)
	}

	a := &models.Attachment{
		ConversationID: conversationID,
		CategoryID:     categoryID,
	}
	a.SetAnchor(anchor)
	if err := c.store.SaveAttachment(ctx, a); err != nil {
		return nil, err
	}
	if err := c.catchUpAnchor(ctx, conversationID); err != nil {
		return nil, err
	}
	log.Printf("Follow-up category %d attached to %s", categoryID, conversationID)
	return c.store.GetAttachment(ctx, conversationID)
}

// catchUpAnchor applies an inbound message recorded while the attachment
// was being saved. AdvanceAnchor ignores anything not newer.
func (c *Controller) catchUpAnchor(ctx context.Context, conversationID string) error {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.LastInboundAt == nil {
		return nil
	}
	_, err = c.store.AdvanceAnchor(ctx, conversationID, *conv.LastInboundAt)
	return err
}

// initialAnchor is the latest inbound message already seen, or now.
// Unknown conversations are registered so later inbound events find them.
func (c *Controller) initialAnchor(ctx context.Context, conversationID string) (time.Time, error) {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if errors.Is(err, followup.ErrNotFound) {
		err = c.store.SaveConversation(ctx, &models.Conversation{ID: conversationID, Channel: "whatsapp"})
		return c.Now(), err
	}
	if err != nil {
		return time.Time{}, err
	}
	if conv.LastInboundAt != nil {
		return *conv.LastInboundAt, nil
	}
	return c.Now(), nil
}

// RequestArm issues the confirmation token that Arm requires
func (c *Controller) RequestArm(ctx context.Context, conversationID string) (*models.ArmConfirmation, error) {
	if _, err := c.attachment(ctx, conversationID); err != nil {
		return nil, err
	}
	now := c.Now().UTC()
	conf := &models.ArmConfirmation{
		Token:          uuid.NewString(),
		ConversationID: conversationID,
		ExpiresAt:      now.Add(c.confirmationTTL),
		CreatedAt:      now,
	}
	if err := c.store.CreateArmConfirmation(ctx, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// Arm turns auto_send on after consuming a confirmation token. The anchor
// and the ledger are left alone, so arming a completed attachment does
// nothing until the next inbound message.
func (c *Controller) Arm(ctx context.Context, conversationID, token string) (*models.Attachment, error) {
	if _, err := c.attachment(ctx, conversationID); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, followup.ErrConfirmationRequired
	}
	if err := c.store.ConsumeArmConfirmation(ctx, token, conversationID, c.Now()); err != nil {
		return nil, err
	}
	if err := c.store.SetAutoSend(ctx, conversationID, true); err != nil {
		return nil, c.mapMissing(conversationID, err)
	}
	log.Printf("🔔 Follow-up auto send armed for %s", conversationID)
	return c.store.GetAttachment(ctx, conversationID)
}

// Disarm turns auto_send off. Sends already started in the current tick
// finish; later ticks skip the conversation.
func (c *Controller) Disarm(ctx context.Context, conversationID string) (*models.Attachment, error) {
	if err := c.store.SetAutoSend(ctx, conversationID, false); err != nil {
		return nil, c.mapMissing(conversationID, err)
	}
	log.Printf("🔕 Follow-up auto send disarmed for %s", conversationID)
	return c.store.GetAttachment(ctx, conversationID)
}

// Detach removes the attachment. Ledger rows are kept for audit.
func (c *Controller) Detach(ctx context.Context, conversationID string) error {
	if err := c.store.DeleteAttachment(ctx, conversationID); err != nil {
		return c.mapMissing(conversationID, err)
	}
	log.Printf("Follow-up detached from %s", conversationID)
	return nil
}

// Status returns the attachment with per-template unlock state
func (c *Controller) Status(ctx context.Context, conversationID string) (*AttachmentStatus, error) {
	a, err := c.attachment(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	templates, err := c.store.ListTemplates(ctx, a.CategoryID)
	if err != nil {
		return nil, err
	}
	sent, err := c.store.SentTemplateIDs(ctx, conversationID, a.Epoch)
	if err != nil {
		return nil, err
	}

	now := c.Now()
	status := &AttachmentStatus{
		Attachment: a,
		State:      a.State(),
		Templates:  followup.Preview(templates, a.AnchorAt, now, sent),
	}
	if next, ok := followup.NextUnlock(templates, a.AnchorAt, now); ok {
		status.NextUnlockAt = &next
	}
	return status, nil
}

func (c *Controller) attachment(ctx context.Context, conversationID string) (*models.Attachment, error) {
	a, err := c.store.GetAttachment(ctx, conversationID)
	if err != nil {
		return nil, c.mapMissing(conversationID, err)
	}
	return a, nil
}

func (c *Controller) mapMissing(conversationID string, err error) error {
	if errors.Is(err, followup.ErrNotFound) {
		return followup.NoAttachment(conversationID)
	}
	return err
}
