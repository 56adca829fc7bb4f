package models

import "time"

// Category is an owner's named follow-up cadence. Its templates are the
// messages the cadence sends.
type Category struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	OwnerID   string    `json:"owner_id" gorm:"not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Template is a pre-written message sent DelayMinutes after the anchor.
type Template struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	CategoryID   uint      `json:"category_id" gorm:"not null;index"`
	Name         string    `json:"name" gorm:"not null"`
	Message      string    `json:"message" gorm:"type:text;not null"`
	DelayMinutes int       `json:"delay_minutes" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Delay returns the template offset as a duration.
func (t *Template) Delay() time.Duration {
	return time.Duration(t.DelayMinutes) * time.Minute
}

// TemplateInput is the writable part of a template
type TemplateInput struct {
	Name         string `json:"name"`
	Message      string `json:"message"`
	DelayMinutes int    `json:"delay_minutes"`
}

// CategoryInput is used when creating a category
type CategoryInput struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}
