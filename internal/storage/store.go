package storage

import (
	"context"
	"time"

	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// Store defines the interface for storage operations. Lookups of a missing
// row return an error wrapping followup.ErrNotFound.
type Store interface {
	// Category operations
	CreateCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	ListCategories(ctx context.Context, ownerID string) ([]*models.Category, error)
	// DeleteCategory removes the category, its templates and any attachment
	// pointing at it. Ledger rows are kept.
	DeleteCategory(ctx context.Context, id uint) error

	// Template operations
	CreateTemplate(ctx context.Context, template *models.Template) (*models.Template, error)
	GetTemplate(ctx context.Context, id uint) (*models.Template, error)
	UpdateTemplate(ctx context.Context, template *models.Template) error
	DeleteTemplate(ctx context.Context, id uint) error
	// ListTemplates returns a category's templates ordered (delay_minutes, id).
	ListTemplates(ctx context.Context, categoryID uint) ([]models.Template, error)

	// Conversation operations
	SaveConversation(ctx context.Context, conversation *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByContact(ctx context.Context, contact string) (*models.Conversation, error)
	// RecordInbound sets last_inbound_at = max(last_inbound_at, at).
	RecordInbound(ctx context.Context, conversationID string, at time.Time) error

	// Attachment operations
	SaveAttachment(ctx context.Context, attachment *models.Attachment) error
	GetAttachment(ctx context.Context, conversationID string) (*models.Attachment, error)
	DeleteAttachment(ctx context.Context, conversationID string) error
	SetAutoSend(ctx context.Context, conversationID string, autoSend bool) error
	// AdvanceAnchor moves the anchor forward to at and clears completed. It
	// reports false when there is no attachment or at does not advance it.
	AdvanceAnchor(ctx context.Context, conversationID string, at time.Time) (bool, error)
	// SetCompleted writes completed only if the attachment is still on epoch.
	SetCompleted(ctx context.Context, conversationID string, epoch int64, completed bool) (bool, error)
	// ListArmedAttachments returns attachments with auto_send and not completed.
	ListArmedAttachments(ctx context.Context) ([]*models.Attachment, error)
	// ResetCompletedForCategory clears completed on every attachment of a
	// category whose template set changed.
	ResetCompletedForCategory(ctx context.Context, categoryID uint) error

	// Dispatch ledger operations
	TryClaim(ctx context.Context, conversationID string, templateID uint, epoch int64, now time.Time) (models.ClaimResult, error)
	MarkSent(ctx context.Context, conversationID string, templateID uint, epoch int64, at time.Time) error
	Release(ctx context.Context, conversationID string, templateID uint, epoch int64) error
	// SentTemplateIDs returns the templates with a sent record for the epoch.
	SentTemplateIDs(ctx context.Context, conversationID string, epoch int64) (map[uint]bool, error)
	ListDispatches(ctx context.Context, conversationID string) ([]*models.DispatchRecord, error)
	// LatestEpoch is the highest epoch in the conversation's ledger, 0 if empty.
	LatestEpoch(ctx context.Context, conversationID string) (int64, error)
	// ReapStaleClaims drops unsent claims taken before olderThan.
	ReapStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)

	// Arm confirmation operations
	CreateArmConfirmation(ctx context.Context, confirmation *models.ArmConfirmation) error
	// ConsumeArmConfirmation marks a valid token as used. It returns
	// followup.ErrConfirmationRequired when the token cannot be used.
	ConsumeArmConfirmation(ctx context.Context, token, conversationID string, now time.Time) error
	DeleteExpiredArmConfirmations(ctx context.Context, now time.Time) (int64, error)
}
