package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ananth-NQI/convo-followups/database"
	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// newTestDatabaseStore opens a migrated SQLite database in a temp dir
func newTestDatabaseStore(t *testing.T) *DatabaseStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "followups.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDatabaseStore(db)
}

// forEachStore runs fn against every Store implementation
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("database", func(t *testing.T) { fn(t, newTestDatabaseStore(t)) })
}

func seedCategory(t *testing.T, s Store, delays ...int) (*models.Category, []models.Template) {
	t.Helper()
	ctx := context.Background()
	c, err := s.CreateCategory(ctx, &models.Category{OwnerID: "acme", Name: "Leads"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	for i, d := range delays {
		_, err := s.CreateTemplate(ctx, &models.Template{
			CategoryID:   c.ID,
			Name:         "step",
			Message:      "message " + string(rune('A'+i)),
			DelayMinutes: d,
		})
		if err != nil {
			t.Fatalf("CreateTemplate: %v", err)
		}
	}
	templates, err := s.ListTemplates(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	return c, templates
}

func seedAttachment(t *testing.T, s Store, convID string, categoryID uint, anchor time.Time) *models.Attachment {
	t.Helper()
	a := &models.Attachment{ConversationID: convID, CategoryID: categoryID, AutoSend: true}
	a.SetAnchor(anchor)
	if err := s.SaveAttachment(context.Background(), a); err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	return a
}

func TestStore_TemplatesOrdered(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, templates := seedCategory(t, s, 60, 0, 60, 30)

		for i := 1; i < len(templates); i++ {
			if followup.Less(templates[i], templates[i-1]) {
				t.Fatalf("templates out of order: %+v", templates)
			}
		}
		if templates[0].DelayMinutes != 0 || templates[3].DelayMinutes != 60 {
			t.Errorf("unexpected delays: %d..%d", templates[0].DelayMinutes, templates[3].DelayMinutes)
		}
		if templates[2].ID > templates[3].ID {
			t.Errorf("equal delays should order by id, got %d before %d", templates[2].ID, templates[3].ID)
		}
	})
}

func TestStore_CreateTemplateUnknownCategory(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.CreateTemplate(context.Background(), &models.Template{CategoryID: 99, Name: "x", Message: "y"})
		if !errors.Is(err, followup.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_DeleteCategoryCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, templates := seedCategory(t, s, 0)
		seedAttachment(t, s, "conv-1", c.ID, t0)
		if _, err := s.TryClaim(ctx, "conv-1", templates[0].ID, models.EpochOf(t0), t0); err != nil {
			t.Fatalf("TryClaim: %v", err)
		}

		if err := s.DeleteCategory(ctx, c.ID); err != nil {
			t.Fatalf("DeleteCategory: %v", err)
		}
		if _, err := s.GetTemplate(ctx, templates[0].ID); !errors.Is(err, followup.ErrNotFound) {
			t.Errorf("template survived category delete: %v", err)
		}
		if _, err := s.GetAttachment(ctx, "conv-1"); !errors.Is(err, followup.ErrNotFound) {
			t.Errorf("attachment survived category delete: %v", err)
		}
		recs, err := s.ListDispatches(ctx, "conv-1")
		if err != nil {
			t.Fatalf("ListDispatches: %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("ledger rows = %d, want 1 kept for audit", len(recs))
		}
	})
}

func TestStore_AdvanceAnchorIsMax(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, _ := seedCategory(t, s, 0)
		seedAttachment(t, s, "conv-1", c.ID, t0)
		if ok, _ := s.SetCompleted(ctx, "conv-1", models.EpochOf(t0), true); !ok {
			t.Fatal("SetCompleted on current epoch should succeed")
		}

		later := t0.Add(time.Hour)
		ok, err := s.AdvanceAnchor(ctx, "conv-1", later)
		if err != nil || !ok {
			t.Fatalf("AdvanceAnchor(later) = %v, %v; want true", ok, err)
		}
		if ok, _ := s.AdvanceAnchor(ctx, "conv-1", t0.Add(30*time.Minute)); ok {
			t.Error("older timestamp moved the anchor")
		}
		if ok, _ := s.AdvanceAnchor(ctx, "conv-1", later); ok {
			t.Error("replayed timestamp reported an advance")
		}

		a, err := s.GetAttachment(ctx, "conv-1")
		if err != nil {
			t.Fatalf("GetAttachment: %v", err)
		}
		if a.Epoch != models.EpochOf(later) || !a.AnchorAt.Equal(later) {
			t.Errorf("anchor = %s (epoch %d), want %s", a.AnchorAt, a.Epoch, later)
		}
		if a.Completed {
			t.Error("advancing the anchor should clear completed")
		}
	})
}

func TestStore_AdvanceAnchorWithoutAttachment(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ok, err := s.AdvanceAnchor(context.Background(), "nobody", t0)
		if err != nil || ok {
			t.Errorf("AdvanceAnchor = %v, %v; want false, nil", ok, err)
		}
	})
}

func TestStore_SetCompletedStaleEpoch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, _ := seedCategory(t, s, 0)
		seedAttachment(t, s, "conv-1", c.ID, t0)
		if _, err := s.AdvanceAnchor(ctx, "conv-1", t0.Add(time.Minute)); err != nil {
			t.Fatalf("AdvanceAnchor: %v", err)
		}

		ok, err := s.SetCompleted(ctx, "conv-1", models.EpochOf(t0), true)
		if err != nil {
			t.Fatalf("SetCompleted: %v", err)
		}
		if ok {
			t.Error("completed written against a stale epoch")
		}
	})
}

func TestStore_ListArmedAttachments(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, _ := seedCategory(t, s, 0)
		seedAttachment(t, s, "armed", c.ID, t0)
		seedAttachment(t, s, "done", c.ID, t0)
		seedAttachment(t, s, "off", c.ID, t0)
		if _, err := s.SetCompleted(ctx, "done", models.EpochOf(t0), true); err != nil {
			t.Fatalf("SetCompleted: %v", err)
		}
		if err := s.SetAutoSend(ctx, "off", false); err != nil {
			t.Fatalf("SetAutoSend: %v", err)
		}

		armed, err := s.ListArmedAttachments(ctx)
		if err != nil {
			t.Fatalf("ListArmedAttachments: %v", err)
		}
		if len(armed) != 1 || armed[0].ConversationID != "armed" {
			t.Errorf("armed = %v, want only conversation 'armed'", armed)
		}
	})
}

func TestStore_ResetCompletedForCategory(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, _ := seedCategory(t, s, 0)
		seedAttachment(t, s, "conv-1", c.ID, t0)
		_, _ = s.SetCompleted(ctx, "conv-1", models.EpochOf(t0), true)

		if err := s.ResetCompletedForCategory(ctx, c.ID); err != nil {
			t.Fatalf("ResetCompletedForCategory: %v", err)
		}
		a, _ := s.GetAttachment(ctx, "conv-1")
		if a.Completed {
			t.Error("completed not cleared")
		}
	})
}

func TestStore_ClaimLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		epoch := models.EpochOf(t0)

		res, err := s.TryClaim(ctx, "conv-1", 1, epoch, t0)
		if err != nil || res != models.Claimed {
			t.Fatalf("first TryClaim = %v, %v; want claimed", res, err)
		}
		res, err = s.TryClaim(ctx, "conv-1", 1, epoch, t0)
		if err != nil || res != models.AlreadyClaimed {
			t.Fatalf("second TryClaim = %v, %v; want already_claimed", res, err)
		}

		// In-flight claims do not count as sent.
		sent, _ := s.SentTemplateIDs(ctx, "conv-1", epoch)
		if sent[1] {
			t.Error("unsent claim reported as sent")
		}

		if err := s.Release(ctx, "conv-1", 1, epoch); err != nil {
			t.Fatalf("Release: %v", err)
		}
		res, _ = s.TryClaim(ctx, "conv-1", 1, epoch, t0)
		if res != models.Claimed {
			t.Fatalf("TryClaim after release = %v, want claimed", res)
		}

		if err := s.MarkSent(ctx, "conv-1", 1, epoch, t0.Add(time.Second)); err != nil {
			t.Fatalf("MarkSent: %v", err)
		}
		// Sent records are never released.
		if err := s.Release(ctx, "conv-1", 1, epoch); err != nil {
			t.Fatalf("Release: %v", err)
		}
		sent, _ = s.SentTemplateIDs(ctx, "conv-1", epoch)
		if !sent[1] {
			t.Error("sent record missing after release attempt")
		}

		// A new epoch is a fresh key.
		res, _ = s.TryClaim(ctx, "conv-1", 1, epoch+1, t0)
		if res != models.Claimed {
			t.Errorf("TryClaim on new epoch = %v, want claimed", res)
		}
	})
}

func TestStore_MarkSentWithoutClaim(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		err := s.MarkSent(context.Background(), "conv-1", 1, 1, t0)
		if !errors.Is(err, followup.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_ConcurrentClaimsSingleWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const workers = 16

		var wg sync.WaitGroup
		var mu sync.Mutex
		claimed := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.TryClaim(ctx, "conv-1", 7, 42, t0)
				if err != nil {
					t.Errorf("TryClaim: %v", err)
					return
				}
				if res == models.Claimed {
					mu.Lock()
					claimed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if claimed != 1 {
			t.Errorf("claims won = %d, want exactly 1", claimed)
		}
	})
}

func TestStore_ReapStaleClaims(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, _ = s.TryClaim(ctx, "conv-1", 1, 1, t0)
		_, _ = s.TryClaim(ctx, "conv-1", 2, 1, t0)
		_ = s.MarkSent(ctx, "conv-1", 2, 1, t0)
		_, _ = s.TryClaim(ctx, "conv-1", 3, 1, t0.Add(time.Hour))

		n, err := s.ReapStaleClaims(ctx, t0.Add(10*time.Minute))
		if err != nil {
			t.Fatalf("ReapStaleClaims: %v", err)
		}
		if n != 1 {
			t.Errorf("reaped %d, want 1", n)
		}
		recs, _ := s.ListDispatches(ctx, "conv-1")
		if len(recs) != 2 {
			t.Errorf("ledger rows = %d, want 2", len(recs))
		}
	})
}

func TestStore_RecordInboundIsMax(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.SaveConversation(ctx, &models.Conversation{ID: "conv-1", Contact: "+15550001"}); err != nil {
			t.Fatalf("SaveConversation: %v", err)
		}
		later := t0.Add(time.Hour)
		if err := s.RecordInbound(ctx, "conv-1", later); err != nil {
			t.Fatalf("RecordInbound: %v", err)
		}
		if err := s.RecordInbound(ctx, "conv-1", t0); err != nil {
			t.Fatalf("RecordInbound older: %v", err)
		}

		c, err := s.GetConversation(ctx, "conv-1")
		if err != nil {
			t.Fatalf("GetConversation: %v", err)
		}
		if c.LastInboundAt == nil || !c.LastInboundAt.Equal(later) {
			t.Errorf("LastInboundAt = %v, want %s", c.LastInboundAt, later)
		}

		if err := s.RecordInbound(ctx, "missing", t0); !errors.Is(err, followup.ErrNotFound) {
			t.Errorf("RecordInbound on unknown conversation = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_ConversationByContact(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.SaveConversation(ctx, &models.Conversation{ID: "conv-1", Contact: "+15550001", Channel: "whatsapp"})

		c, err := s.GetConversationByContact(ctx, "+15550001")
		if err != nil {
			t.Fatalf("GetConversationByContact: %v", err)
		}
		if c.ID != "conv-1" {
			t.Errorf("ID = %s, want conv-1", c.ID)
		}
		if _, err := s.GetConversationByContact(ctx, "+1999"); !errors.Is(err, followup.ErrNotFound) {
			t.Errorf("unknown contact error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_ConversationByContactPrefersOldest(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.SaveConversation(ctx, &models.Conversation{ID: "conv-b", Contact: "+15550001", Channel: "whatsapp"})
		time.Sleep(5 * time.Millisecond)
		_ = s.SaveConversation(ctx, &models.Conversation{ID: "conv-a", Contact: "+15550001", Channel: "whatsapp"})

		for i := 0; i < 10; i++ {
			c, err := s.GetConversationByContact(ctx, "+15550001")
			if err != nil {
				t.Fatalf("GetConversationByContact: %v", err)
			}
			if c.ID != "conv-b" {
				t.Fatalf("ID = %s, want the oldest conversation conv-b", c.ID)
			}
		}
	})
}

func TestStore_LatestEpoch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, templates := seedCategory(t, s, 0, 5)

		if e, err := s.LatestEpoch(ctx, "conv-1"); err != nil || e != 0 {
			t.Fatalf("empty ledger = %d, %v; want 0", e, err)
		}
		_, _ = s.TryClaim(ctx, "conv-1", templates[0].ID, 2000, t0)
		_, _ = s.TryClaim(ctx, "conv-1", templates[1].ID, 1000, t0)
		_, _ = s.TryClaim(ctx, "conv-2", templates[0].ID, 9000, t0)

		e, err := s.LatestEpoch(ctx, "conv-1")
		if err != nil {
			t.Fatalf("LatestEpoch: %v", err)
		}
		if e != 2000 {
			t.Errorf("LatestEpoch = %d, want 2000", e)
		}
	})
}

func TestStore_ArmConfirmation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conf := &models.ArmConfirmation{
			Token:          "tok-1",
			ConversationID: "conv-1",
			ExpiresAt:      t0.Add(5 * time.Minute),
			CreatedAt:      t0,
		}
		if err := s.CreateArmConfirmation(ctx, conf); err != nil {
			t.Fatalf("CreateArmConfirmation: %v", err)
		}

		if err := s.ConsumeArmConfirmation(ctx, "tok-1", "conv-2", t0); !errors.Is(err, followup.ErrConfirmationRequired) {
			t.Errorf("wrong conversation: %v, want ErrConfirmationRequired", err)
		}
		if err := s.ConsumeArmConfirmation(ctx, "tok-1", "conv-1", t0.Add(10*time.Minute)); !errors.Is(err, followup.ErrConfirmationRequired) {
			t.Errorf("expired token: %v, want ErrConfirmationRequired", err)
		}
		if err := s.ConsumeArmConfirmation(ctx, "tok-1", "conv-1", t0.Add(time.Minute)); err != nil {
			t.Fatalf("valid token: %v", err)
		}
		if err := s.ConsumeArmConfirmation(ctx, "tok-1", "conv-1", t0.Add(time.Minute)); !errors.Is(err, followup.ErrConfirmationRequired) {
			t.Errorf("reused token: %v, want ErrConfirmationRequired", err)
		}

		n, err := s.DeleteExpiredArmConfirmations(ctx, t0.Add(time.Minute))
		if err != nil {
			t.Fatalf("DeleteExpiredArmConfirmations: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted %d confirmations, want 1", n)
		}
	})
}
