package services

import (
	"context"
	"testing"
	"time"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

func TestAnchorTracker_OutOfOrderEvents(t *testing.T) {
	store := storage.NewMemoryStore()
	tracker := NewAnchorTracker(store)
	ctx := context.Background()
	c, _ := seed(t, store, 0)

	clock := &fixedClock{now: t0}
	ctrl := NewController(store, time.Minute)
	ctrl.Now = clock.Now
	if _, err := ctrl.Attach(ctx, "conv-1", c.ID); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	t1 := t0.Add(10 * time.Minute)
	t2 := t0.Add(20 * time.Minute)
	for _, ts := range []time.Time{t2, t1, t2} {
		err := tracker.HandleEvent(ctx, models.InboundEvent{
			ConversationID: "conv-1",
			Direction:      models.DirectionInbound,
			Timestamp:      ts,
		})
		if err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}

	a, _ := store.GetAttachment(ctx, "conv-1")
	if !a.AnchorAt.Equal(t2) {
		t.Errorf("anchor = %s, want %s", a.AnchorAt, t2)
	}
	conv, _ := store.GetConversation(ctx, "conv-1")
	if conv.LastInboundAt == nil || !conv.LastInboundAt.Equal(t2) {
		t.Errorf("last_inbound_at = %v, want %s", conv.LastInboundAt, t2)
	}
}

func TestAnchorTracker_IgnoresOutbound(t *testing.T) {
	store := storage.NewMemoryStore()
	tracker := NewAnchorTracker(store)
	ctx := context.Background()

	err := tracker.HandleEvent(ctx, models.InboundEvent{
		ConversationID: "conv-1",
		Direction:      models.DirectionOutbound,
		Timestamp:      t0,
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if _, err := store.GetConversation(ctx, "conv-1"); err == nil {
		t.Error("outbound event should not create a conversation")
	}
}

func TestAnchorTracker_NoAttachmentRecordsInbound(t *testing.T) {
	store := storage.NewMemoryStore()
	tracker := NewAnchorTracker(store)
	ctx := context.Background()

	advanced, err := tracker.OnInboundMessage(ctx, "conv-1", t0)
	if err != nil || advanced {
		t.Fatalf("OnInboundMessage = %v, %v; want false, nil", advanced, err)
	}

	err = tracker.HandleEvent(ctx, models.InboundEvent{
		ConversationID: "conv-1",
		Direction:      models.DirectionInbound,
		Timestamp:      t0,
		Contact:        "+15550001",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	conv, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.Contact != "+15550001" || conv.LastInboundAt == nil {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestAnchorTracker_RejectsMissingFields(t *testing.T) {
	tracker := NewAnchorTracker(storage.NewMemoryStore())
	ctx := context.Background()

	err := tracker.HandleEvent(ctx, models.InboundEvent{Direction: models.DirectionInbound, Timestamp: t0})
	if !followup.IsValidation(err) {
		t.Errorf("missing conversation id: error = %v, want ValidationError", err)
	}
	err = tracker.HandleEvent(ctx, models.InboundEvent{ConversationID: "c", Direction: models.DirectionInbound})
	if !followup.IsValidation(err) {
		t.Errorf("missing timestamp: error = %v, want ValidationError", err)
	}
}

func TestAnchorTracker_HandleContactMessage(t *testing.T) {
	store := storage.NewMemoryStore()
	tracker := NewAnchorTracker(store)
	ctx := context.Background()

	first, err := tracker.HandleContactMessage(ctx, "+15550001", t0)
	if err != nil {
		t.Fatalf("HandleContactMessage: %v", err)
	}
	second, err := tracker.HandleContactMessage(ctx, "+15550001", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("HandleContactMessage: %v", err)
	}
	if first == "" || first != second {
		t.Errorf("contact mapped to %q then %q, want one conversation", first, second)
	}

	conv, _ := store.GetConversation(ctx, first)
	if !conv.LastInboundAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("last_inbound_at = %s", conv.LastInboundAt)
	}
}
