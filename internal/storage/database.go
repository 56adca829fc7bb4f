package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// DatabaseStore implements Store on gorm. The dispatch ledger relies on the
// unique index over (conversation_id, template_id, epoch_anchor_at), so any
// number of processes can share one database.
type DatabaseStore struct {
	db *gorm.DB
}

var _ Store = (*DatabaseStore)(nil)

// NewDatabaseStore creates a store over an already migrated connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, followup.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Category operations
func (s *DatabaseStore) CreateCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	c := *category
	c.ID = 0
	if err := s.conn(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &c, nil
}

func (s *DatabaseStore) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	if err := s.conn(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("category %d", id))
	}
	return &c, nil
}

func (s *DatabaseStore) ListCategories(ctx context.Context, ownerID string) ([]*models.Category, error) {
	var out []*models.Category
	q := s.conn(ctx).Order("id asc")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (s *DatabaseStore) DeleteCategory(ctx context.Context, id uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Category{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete category: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("category %d: %w", id, followup.ErrNotFound)
		}
		if err := tx.Where("category_id = ?", id).Delete(&models.Template{}).Error; err != nil {
			return fmt.Errorf("delete templates: %w", err)
		}
		if err := tx.Where("category_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		return nil
	})
}

// Template operations
func (s *DatabaseStore) CreateTemplate(ctx context.Context, template *models.Template) (*models.Template, error) {
	if _, err := s.GetCategory(ctx, template.CategoryID); err != nil {
		return nil, err
	}
	t := *template
	t.ID = 0
	if err := s.conn(ctx).Create(&t).Error; err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return &t, nil
}

func (s *DatabaseStore) GetTemplate(ctx context.Context, id uint) (*models.Template, error) {
	var t models.Template
	if err := s.conn(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("template %d", id))
	}
	return &t, nil
}

func (s *DatabaseStore) UpdateTemplate(ctx context.Context, template *models.Template) error {
	res := s.conn(ctx).Model(&models.Template{}).Where("id = ?", template.ID).Updates(map[string]interface{}{
		"name":          template.Name,
		"message":       template.Message,
		"delay_minutes": template.DelayMinutes,
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("update template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("template %d: %w", template.ID, followup.ErrNotFound)
	}
	return nil
}

func (s *DatabaseStore) DeleteTemplate(ctx context.Context, id uint) error {
	res := s.conn(ctx).Delete(&models.Template{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("template %d: %w", id, followup.ErrNotFound)
	}
	return nil
}

func (s *DatabaseStore) ListTemplates(ctx context.Context, categoryID uint) ([]models.Template, error) {
	var out []models.Template
	err := s.conn(ctx).
		Where("category_id = ?", categoryID).
		Order("delay_minutes asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return out, nil
}

// Conversation operations
func (s *DatabaseStore) SaveConversation(ctx context.Context, conversation *models.Conversation) error {
	c := *conversation
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"contact", "channel", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *DatabaseStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.conn(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "conversation "+id)
	}
	return &c, nil
}

func (s *DatabaseStore) GetConversationByContact(ctx context.Context, contact string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.conn(ctx).Where("contact = ?", contact).Order("created_at asc, id asc").First(&c).Error; err != nil {
		return nil, notFound(err, "conversation for "+contact)
	}
	return &c, nil
}

func (s *DatabaseStore) RecordInbound(ctx context.Context, conversationID string, at time.Time) error {
	at = models.NormalizeTime(at)
	res := s.conn(ctx).Model(&models.Conversation{}).
		Where("id = ? AND (last_inbound_at IS NULL OR last_inbound_at < ?)", conversationID, at).
		Updates(map[string]interface{}{"last_inbound_at": at, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("record inbound: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either older than what we have or the conversation is unknown.
		if _, err := s.GetConversation(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

// Attachment operations
func (s *DatabaseStore) SaveAttachment(ctx context.Context, attachment *models.Attachment) error {
	a := *attachment
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", a.ConversationID).Delete(&models.Attachment{}).Error; err != nil {
			return fmt.Errorf("replace attachment: %w", err)
		}
		if err := tx.Create(&a).Error; err != nil {
			return fmt.Errorf("create attachment: %w", err)
		}
		return nil
	})
}

func (s *DatabaseStore) GetAttachment(ctx context.Context, conversationID string) (*models.Attachment, error) {
	var a models.Attachment
	if err := s.conn(ctx).Where("conversation_id = ?", conversationID).First(&a).Error; err != nil {
		return nil, notFound(err, "attachment "+conversationID)
	}
	return &a, nil
}

func (s *DatabaseStore) DeleteAttachment(ctx context.Context, conversationID string) error {
	res := s.conn(ctx).Where("conversation_id = ?", conversationID).Delete(&models.Attachment{})
	if res.Error != nil {
		return fmt.Errorf("delete attachment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attachment %s: %w", conversationID, followup.ErrNotFound)
	}
	return nil
}

func (s *DatabaseStore) SetAutoSend(ctx context.Context, conversationID string, autoSend bool) error {
	res := s.conn(ctx).Model(&models.Attachment{}).
		Where("conversation_id = ?", conversationID).
		Updates(map[string]interface{}{"auto_send": autoSend, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("set auto_send: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attachment %s: %w", conversationID, followup.ErrNotFound)
	}
	return nil
}

func (s *DatabaseStore) AdvanceAnchor(ctx context.Context, conversationID string, at time.Time) (bool, error) {
	at = models.NormalizeTime(at)
	epoch := at.UnixMilli()
	res := s.conn(ctx).Model(&models.Attachment{}).
		Where("conversation_id = ? AND epoch < ?", conversationID, epoch).
		Updates(map[string]interface{}{
			"anchor_at":  at,
			"epoch":      epoch,
			"completed":  false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("advance anchor: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *DatabaseStore) SetCompleted(ctx context.Context, conversationID string, epoch int64, completed bool) (bool, error) {
	res := s.conn(ctx).Model(&models.Attachment{}).
		Where("conversation_id = ? AND epoch = ?", conversationID, epoch).
		Updates(map[string]interface{}{"completed": completed, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("set completed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *DatabaseStore) ListArmedAttachments(ctx context.Context) ([]*models.Attachment, error) {
	var out []*models.Attachment
	err := s.conn(ctx).
		Where("auto_send = ? AND completed = ?", true, false).
		Order("conversation_id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list armed attachments: %w", err)
	}
	return out, nil
}

func (s *DatabaseStore) ResetCompletedForCategory(ctx context.Context, categoryID uint) error {
	err := s.conn(ctx).Model(&models.Attachment{}).
		Where("category_id = ? AND completed = ?", categoryID, true).
		Updates(map[string]interface{}{"completed": false, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("reset completed: %w", err)
	}
	return nil
}

// Dispatch ledger operations
func (s *DatabaseStore) TryClaim(ctx context.Context, conversationID string, templateID uint, epoch int64, now time.Time) (models.ClaimResult, error) {
	rec := &models.DispatchRecord{
		ConversationID: conversationID,
		TemplateID:     templateID,
		EpochAnchorAt:  epoch,
		ClaimedAt:      now.UTC(),
	}
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return models.AlreadyClaimed, fmt.Errorf("claim dispatch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.AlreadyClaimed, nil
	}
	return models.Claimed, nil
}

func (s *DatabaseStore) claim(ctx context.Context, conversationID string, templateID uint, epoch int64) *gorm.DB {
	return s.conn(ctx).Model(&models.DispatchRecord{}).
		Where("conversation_id = ? AND template_id = ? AND epoch_anchor_at = ?", conversationID, templateID, epoch)
}

func (s *DatabaseStore) MarkSent(ctx context.Context, conversationID string, templateID uint, epoch int64, at time.Time) error {
	res := s.claim(ctx, conversationID, templateID, epoch).Update("sent_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("mark sent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("claim %s/%d/%d: %w", conversationID, templateID, epoch, followup.ErrNotFound)
	}
	return nil
}

func (s *DatabaseStore) Release(ctx context.Context, conversationID string, templateID uint, epoch int64) error {
	err := s.claim(ctx, conversationID, templateID, epoch).
		Where("sent_at IS NULL").
		Delete(&models.DispatchRecord{}).Error
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (s *DatabaseStore) SentTemplateIDs(ctx context.Context, conversationID string, epoch int64) (map[uint]bool, error) {
	var ids []uint
	err := s.conn(ctx).Model(&models.DispatchRecord{}).
		Where("conversation_id = ? AND epoch_anchor_at = ? AND sent_at IS NOT NULL", conversationID, epoch).
		Pluck("template_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("sent templates: %w", err)
	}
	sent := make(map[uint]bool, len(ids))
	for _, id := range ids {
		sent[id] = true
	}
	return sent, nil
}

func (s *DatabaseStore) ListDispatches(ctx context.Context, conversationID string) ([]*models.DispatchRecord, error) {
	var out []*models.DispatchRecord
	err := s.conn(ctx).Where("conversation_id = ?", conversationID).Order("id asc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	return out, nil
}

func (s *DatabaseStore) LatestEpoch(ctx context.Context, conversationID string) (int64, error) {
	var latest int64
	err := s.conn(ctx).Model(&models.DispatchRecord{}).
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(epoch_anchor_at), 0)").
		Scan(&latest).Error
	if err != nil {
		return 0, fmt.Errorf("latest epoch: %w", err)
	}
	return latest, nil
}

func (s *DatabaseStore) ReapStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.conn(ctx).
		Where("sent_at IS NULL AND claimed_at < ?", olderThan.UTC()).
		Delete(&models.DispatchRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("reap stale claims: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Arm confirmation operations
func (s *DatabaseStore) CreateArmConfirmation(ctx context.Context, confirmation *models.ArmConfirmation) error {
	c := *confirmation
	if err := s.conn(ctx).Create(&c).Error; err != nil {
		return fmt.Errorf("create arm confirmation: %w", err)
	}
	return nil
}

func (s *DatabaseStore) ConsumeArmConfirmation(ctx context.Context, token, conversationID string, now time.Time) error {
	now = now.UTC()
	res := s.conn(ctx).Model(&models.ArmConfirmation{}).
		Where("token = ? AND conversation_id = ? AND used_at IS NULL AND expires_at > ?", token, conversationID, now).
		Update("used_at", now)
	if res.Error != nil {
		return fmt.Errorf("consume arm confirmation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return followup.ErrConfirmationRequired
	}
	return nil
}

func (s *DatabaseStore) DeleteExpiredArmConfirmations(ctx context.Context, now time.Time) (int64, error) {
	res := s.conn(ctx).
		Where("used_at IS NOT NULL OR expires_at <= ?", now.UTC()).
		Delete(&models.ArmConfirmation{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired confirmations: %w", res.Error)
	}
	return res.RowsAffected, nil
}
