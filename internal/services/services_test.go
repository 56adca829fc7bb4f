package services

import (
	"context"
	"testing"
	"time"

	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// fixedClock returns a settable clock for the Now fields
type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }
func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// seed creates a category with one template per delay
func seed(t *testing.T, store storage.Store, delays ...int) (*models.Category, []*models.Template) {
	t.Helper()
	catalog := NewCatalogService(store)
	ctx := context.Background()

	c, err := catalog.CreateCategory(ctx, models.CategoryInput{OwnerID: "acme", Name: "Leads"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	var templates []*models.Template
	for i, d := range delays {
		tm, err := catalog.CreateTemplate(ctx, c.ID, models.TemplateInput{
			Name:         "step " + string(rune('1'+i)),
			Message:      "follow-up " + string(rune('1'+i)),
			DelayMinutes: d,
		})
		if err != nil {
			t.Fatalf("CreateTemplate: %v", err)
		}
		templates = append(templates, tm)
	}
	return c, templates
}
