package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// Migrate creates or updates every table the follow-up store uses
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Category{},
		&models.Template{},
		&models.Conversation{},
		&models.Attachment{},
		&models.DispatchRecord{},
		&models.ArmConfirmation{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
