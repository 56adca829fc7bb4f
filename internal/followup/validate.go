package followup

import (
	"strings"

	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// ValidateCategory checks a category before it is written
func ValidateCategory(in models.CategoryInput) error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	return nil
}

// ValidateTemplate checks a template before it is written
func ValidateTemplate(in models.TemplateInput) error {
	if in.DelayMinutes < 0 {
		return &ValidationError{Field: "delay_minutes", Reason: "must not be negative"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(in.Message) == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	return nil
}
