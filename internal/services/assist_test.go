package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

func TestAssist_InsertRespectsUnlock(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	c, templates := seed(t, store, 0, 60)

	ctrl, clock := newTestController(store)
	if _, err := ctrl.Attach(ctx, "conv-1", c.ID); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	assist := NewAssistService(store)
	assist.Now = clock.Now

	clock.Advance(30 * time.Minute)
	unlocked, err := assist.UnlockedTemplates(ctx, "conv-1")
	if err != nil {
		t.Fatalf("UnlockedTemplates: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].ID != templates[0].ID {
		t.Errorf("unlocked = %+v, want first template only", unlocked)
	}

	text, err := assist.InsertTemplate(ctx, "conv-1", templates[0].ID)
	if err != nil {
		t.Fatalf("InsertTemplate: %v", err)
	}
	if text != templates[0].Message {
		t.Errorf("text = %q, want %q", text, templates[0].Message)
	}

	if _, err := assist.InsertTemplate(ctx, "conv-1", templates[1].ID); !errors.Is(err, followup.ErrTemplateLocked) {
		t.Errorf("locked template: error = %v, want ErrTemplateLocked", err)
	}
	if _, err := assist.InsertTemplate(ctx, "conv-1", 999); !errors.Is(err, followup.ErrNotFound) {
		t.Errorf("foreign template: error = %v, want ErrNotFound", err)
	}
}

func TestAssist_NeverTouchesLedger(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	c, templates := seed(t, store, 0)

	ctrl, clock := newTestController(store)
	_, _ = ctrl.Attach(ctx, "conv-1", c.ID)
	assist := NewAssistService(store)
	assist.Now = clock.Now

	if _, err := assist.InsertTemplate(ctx, "conv-1", templates[0].ID); err != nil {
		t.Fatalf("InsertTemplate: %v", err)
	}
	recs, _ := store.ListDispatches(ctx, "conv-1")
	if len(recs) != 0 {
		t.Errorf("manual insert wrote %d ledger rows", len(recs))
	}
	a, _ := store.GetAttachment(ctx, "conv-1")
	if a.Completed {
		t.Error("manual insert marked the attachment completed")
	}
}

func TestAssist_WithoutAttachment(t *testing.T) {
	assist := NewAssistService(storage.NewMemoryStore())
	if _, err := assist.UnlockedTemplates(context.Background(), "none"); !followup.IsState(err) {
		t.Errorf("error = %v, want StateError", err)
	}
}
