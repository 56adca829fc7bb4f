package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

// AssistService serves the manual "insert template" action. It only reads:
// a human copying a template into the compose box never claims a ledger
// slot and never affects completion.
type AssistService struct {
	store storage.Store

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewAssistService creates a new assist service
func NewAssistService(store storage.Store) *AssistService {
	return &AssistService{store: store, Now: time.Now}
}

// UnlockedTemplates lists the attached category's templates whose delay has
// elapsed, in cadence order.
func (s *AssistService) UnlockedTemplates(ctx context.Context, conversationID string) ([]models.Template, error) {
	a, templates, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return followup.Unlocked(templates, a.AnchorAt, s.Now()), nil
}

// InsertTemplate returns a template's text for the compose box when it is
// unlocked.
func (s *AssistService) InsertTemplate(ctx context.Context, conversationID string, templateID uint) (string, error) {
	a, templates, err := s.load(ctx, conversationID)
	if err != nil {
		return "", err
	}
	for _, t := range templates {
		if t.ID != templateID {
			continue
		}
		if !followup.IsUnlocked(t, a.AnchorAt, s.Now()) {
			return "", fmt.Errorf("template %d unlocks at %s: %w",
				t.ID, followup.UnlockTime(t, a.AnchorAt).Format(time.RFC3339), followup.ErrTemplateLocked)
		}
		return t.Message, nil
	}
	return "", fmt.Errorf("template %d in category %d: %w", templateID, a.CategoryID, followup.ErrNotFound)
}

func (s *AssistService) load(ctx context.Context, conversationID string) (*models.Attachment, []models.Template, error) {
	a, err := s.store.GetAttachment(ctx, conversationID)
	if errors.Is(err, followup.ErrNotFound) {
		return nil, nil, followup.NoAttachment(conversationID)
	}
	if err != nil {
		return nil, nil, err
	}
	templates, err := s.store.ListTemplates(ctx, a.CategoryID)
	if err != nil {
		return nil, nil, err
	}
	return a, templates, nil
}
