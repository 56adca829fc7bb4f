package followup

import (
	"sort"
	"time"

	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// UnlockTime is the instant a template becomes eligible: anchor + delay.
func UnlockTime(t models.Template, anchorAt time.Time) time.Time {
	return anchorAt.Add(t.Delay())
}

// IsUnlocked reports whether now has reached the template's unlock time.
func IsUnlocked(t models.Template, anchorAt, now time.Time) bool {
	return !now.Before(UnlockTime(t, anchorAt))
}

// SortTemplates orders templates by (delay_minutes asc, id asc) in place.
func SortTemplates(templates []models.Template) {
	sort.SliceStable(templates, func(i, j int) bool {
		return Less(templates[i], templates[j])
	})
}

// Less is the cadence order. Ties on delay fall back to id so the order is
// the same on every worker.
func Less(a, b models.Template) bool {
	if a.DelayMinutes != b.DelayMinutes {
		return a.DelayMinutes < b.DelayMinutes
	}
	return a.ID < b.ID
}

// Unlocked returns the templates already unlocked at now, keeping the
// input order.
func Unlocked(templates []models.Template, anchorAt, now time.Time) []models.Template {
	var out []models.Template
	for _, t := range templates {
		if IsUnlocked(t, anchorAt, now) {
			out = append(out, t)
		}
	}
	return out
}

// TemplateStatus is what a UI needs to draw one template row: the unlock
// time and whether it is still locked.
type TemplateStatus struct {
	Template models.Template `json:"template"`
	UnlockAt time.Time       `json:"unlock_at"`
	Unlocked bool            `json:"unlocked"`
	Sent     bool            `json:"sent"`
}

// Preview computes display state for ordered templates. sent holds the ids
// with a sent ledger record for the current epoch and may be nil.
func Preview(templates []models.Template, anchorAt, now time.Time, sent map[uint]bool) []TemplateStatus {
	out := make([]TemplateStatus, 0, len(templates))
	for _, t := range templates {
		out = append(out, TemplateStatus{
			Template: t,
			UnlockAt: UnlockTime(t, anchorAt),
			Unlocked: IsUnlocked(t, anchorAt, now),
			Sent:     sent[t.ID],
		})
	}
	return out
}

// NextUnlock returns the earliest unlock time after now among templates, and
// false when every template is already unlocked.
func NextUnlock(templates []models.Template, anchorAt, now time.Time) (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range templates {
		at := UnlockTime(t, anchorAt)
		if !at.After(now) {
			continue
		}
		if !found || at.Before(next) {
			next = at
			found = true
		}
	}
	return next, found
}
