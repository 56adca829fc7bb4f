package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
)

type claimKey struct {
	conversationID string
	templateID     uint
	epoch          int64
}

// MemoryStore holds all data in memory. It is used by tests and by
// USE_MEMORY_STORE=true; a single process only.
type MemoryStore struct {
	categories    map[uint]*models.Category
	templates     map[uint]*models.Template
	conversations map[string]*models.Conversation
	attachments   map[string]*models.Attachment
	dispatches    map[claimKey]*models.DispatchRecord
	confirmations map[string]*models.ArmConfirmation

	// Mutexes for thread safety. Lock order: catalogMu, then conversationMu.
	catalogMu      sync.RWMutex
	conversationMu sync.RWMutex
	ledgerMu       sync.RWMutex
	confirmMu      sync.Mutex

	// Counters for ID generation
	categoryCounter uint
	templateCounter uint
	dispatchCounter uint
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories:    make(map[uint]*models.Category),
		templates:     make(map[uint]*models.Template),
		conversations: make(map[string]*models.Conversation),
		attachments:   make(map[string]*models.Attachment),
		dispatches:    make(map[claimKey]*models.DispatchRecord),
		confirmations: make(map[string]*models.ArmConfirmation),
	}
}

// Category operations
func (m *MemoryStore) CreateCategory(_ context.Context, category *models.Category) (*models.Category, error) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	m.categoryCounter++
	now := time.Now()
	c := *category
	c.ID = m.categoryCounter
	c.CreatedAt = now
	c.UpdatedAt = now
	m.categories[c.ID] = &c

	out := c
	return &out, nil
}

func (m *MemoryStore) GetCategory(_ context.Context, id uint) (*models.Category, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	c, exists := m.categories[id]
	if !exists {
		return nil, fmt.Errorf("category %d: %w", id, followup.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (m *MemoryStore) ListCategories(_ context.Context, ownerID string) ([]*models.Category, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	var out []*models.Category
	for _, c := range m.categories {
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteCategory(_ context.Context, id uint) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if _, exists := m.categories[id]; !exists {
		return fmt.Errorf("category %d: %w", id, followup.ErrNotFound)
	}
	delete(m.categories, id)
	for tid, t := range m.templates {
		if t.CategoryID == id {
			delete(m.templates, tid)
		}
	}

	m.conversationMu.Lock()
	for cid, a := range m.attachments {
		if a.CategoryID == id {
			delete(m.attachments, cid)
		}
	}
	m.conversationMu.Unlock()
	return nil
}

// Template operations
func (m *MemoryStore) CreateTemplate(_ context.Context, template *models.Template) (*models.Template, error) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if _, exists := m.categories[template.CategoryID]; !exists {
		return nil, fmt.Errorf("category %d: %w", template.CategoryID, followup.ErrNotFound)
	}

	m.templateCounter++
	now := time.Now()
	t := *template
	t.ID = m.templateCounter
	t.CreatedAt = now
	t.UpdatedAt = now
	m.templates[t.ID] = &t

	out := t
	return &out, nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, id uint) (*models.Template, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	t, exists := m.templates[id]
	if !exists {
		return nil, fmt.Errorf("template %d: %w", id, followup.ErrNotFound)
	}
	out := *t
	return &out, nil
}

func (m *MemoryStore) UpdateTemplate(_ context.Context, template *models.Template) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	existing, exists := m.templates[template.ID]
	if !exists {
		return fmt.Errorf("template %d: %w", template.ID, followup.ErrNotFound)
	}
	existing.Name = template.Name
	existing.Message = template.Message
	existing.DelayMinutes = template.DelayMinutes
	existing.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteTemplate(_ context.Context, id uint) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if _, exists := m.templates[id]; !exists {
		return fmt.Errorf("template %d: %w", id, followup.ErrNotFound)
	}
	delete(m.templates, id)
	return nil
}

func (m *MemoryStore) ListTemplates(_ context.Context, categoryID uint) ([]models.Template, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	var out []models.Template
	for _, t := range m.templates {
		if t.CategoryID == categoryID {
			out = append(out, *t)
		}
	}
	followup.SortTemplates(out)
	return out, nil
}

// Conversation operations
func (m *MemoryStore) SaveConversation(_ context.Context, conversation *models.Conversation) error {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	now := time.Now()
	c := *conversation
	if existing, exists := m.conversations[c.ID]; exists {
		c.CreatedAt = existing.CreatedAt
		c.LastInboundAt = existing.LastInboundAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.conversations[c.ID] = &c
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.conversationMu.RLock()
	defer m.conversationMu.RUnlock()

	c, exists := m.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation %s: %w", id, followup.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (m *MemoryStore) GetConversationByContact(_ context.Context, contact string) (*models.Conversation, error) {
	m.conversationMu.RLock()
	defer m.conversationMu.RUnlock()

	// Oldest first, as the database store does.
	var found *models.Conversation
	for _, c := range m.conversations {
		if c.Contact != contact {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) ||
			(c.CreatedAt.Equal(found.CreatedAt) && c.ID < found.ID) {
			found = c
		}
	}
	if found == nil {
		return nil, fmt.Errorf("conversation for %s: %w", contact, followup.ErrNotFound)
	}
	out := *found
	return &out, nil
}

func (m *MemoryStore) RecordInbound(_ context.Context, conversationID string, at time.Time) error {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	c, exists := m.conversations[conversationID]
	if !exists {
		return fmt.Errorf("conversation %s: %w", conversationID, followup.ErrNotFound)
	}
	at = models.NormalizeTime(at)
	if c.LastInboundAt == nil || at.After(*c.LastInboundAt) {
		c.LastInboundAt = &at
		c.UpdatedAt = time.Now()
	}
	return nil
}

// Attachment operations
func (m *MemoryStore) SaveAttachment(_ context.Context, attachment *models.Attachment) error {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	a := *attachment
	a.UpdatedAt = time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = a.UpdatedAt
	}
	m.attachments[a.ConversationID] = &a
	return nil
}

func (m *MemoryStore) GetAttachment(_ context.Context, conversationID string) (*models.Attachment, error) {
	m.conversationMu.RLock()
	defer m.conversationMu.RUnlock()

	a, exists := m.attachments[conversationID]
	if !exists {
		return nil, fmt.Errorf("attachment %s: %w", conversationID, followup.ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (m *MemoryStore) DeleteAttachment(_ context.Context, conversationID string) error {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	if _, exists := m.attachments[conversationID]; !exists {
		return fmt.Errorf("attachment %s: %w", conversationID, followup.ErrNotFound)
	}
	delete(m.attachments, conversationID)
	return nil
}

func (m *MemoryStore) SetAutoSend(_ context.Context, conversationID string, autoSend bool) error {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	a, exists := m.attachments[conversationID]
	if !exists {
		return fmt.Errorf("attachment %s: %w", conversationID, followup.ErrNotFound)
	}
	a.AutoSend = autoSend
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AdvanceAnchor(_ context.Context, conversationID string, at time.Time) (bool, error) {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	a, exists := m.attachments[conversationID]
	if !exists || models.EpochOf(at) <= a.Epoch {
		return false, nil
	}
	a.SetAnchor(at)
	a.Completed = false
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) SetCompleted(_ context.Context, conversationID string, epoch int64, completed bool) (bool, error) {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	a, exists := m.attachments[conversationID]
	if !exists || a.Epoch != epoch {
		return false, nil
	}
	a.Completed = completed
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ListArmedAttachments(_ context.Context) ([]*models.Attachment, error) {
	m.conversationMu.RLock()
	defer m.conversationMu.RUnlock()

	var out []*models.Attachment
	for _, a := range m.attachments {
		if a.AutoSend && !a.Completed {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out, nil
}

func (m *MemoryStore) ResetCompletedForCategory(_ context.Context, categoryID uint) error {
	m.conversationMu.Lock()
	defer m.conversationMu.Unlock()

	for _, a := range m.attachments {
		if a.CategoryID == categoryID && a.Completed {
			a.Completed = false
			a.UpdatedAt = time.Now()
		}
	}
	return nil
}

// Dispatch ledger operations
func (m *MemoryStore) TryClaim(_ context.Context, conversationID string, templateID uint, epoch int64, now time.Time) (models.ClaimResult, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	key := claimKey{conversationID, templateID, epoch}
	if _, exists := m.dispatches[key]; exists {
		return models.AlreadyClaimed, nil
	}
	m.dispatchCounter++
	m.dispatches[key] = &models.DispatchRecord{
		ID:             m.dispatchCounter,
		ConversationID: conversationID,
		TemplateID:     templateID,
		EpochAnchorAt:  epoch,
		ClaimedAt:      now.UTC(),
	}
	return models.Claimed, nil
}

func (m *MemoryStore) MarkSent(_ context.Context, conversationID string, templateID uint, epoch int64, at time.Time) error {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	rec, exists := m.dispatches[claimKey{conversationID, templateID, epoch}]
	if !exists {
		return fmt.Errorf("claim %s/%d/%d: %w", conversationID, templateID, epoch, followup.ErrNotFound)
	}
	sentAt := at.UTC()
	rec.SentAt = &sentAt
	return nil
}

func (m *MemoryStore) Release(_ context.Context, conversationID string, templateID uint, epoch int64) error {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	key := claimKey{conversationID, templateID, epoch}
	if rec, exists := m.dispatches[key]; exists && !rec.IsSent() {
		delete(m.dispatches, key)
	}
	return nil
}

func (m *MemoryStore) SentTemplateIDs(_ context.Context, conversationID string, epoch int64) (map[uint]bool, error) {
	m.ledgerMu.RLock()
	defer m.ledgerMu.RUnlock()

	sent := make(map[uint]bool)
	for key, rec := range m.dispatches {
		if key.conversationID == conversationID && key.epoch == epoch && rec.IsSent() {
			sent[key.templateID] = true
		}
	}
	return sent, nil
}

func (m *MemoryStore) ListDispatches(_ context.Context, conversationID string) ([]*models.DispatchRecord, error) {
	m.ledgerMu.RLock()
	defer m.ledgerMu.RUnlock()

	var out []*models.DispatchRecord
	for _, rec := range m.dispatches {
		if rec.ConversationID == conversationID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) LatestEpoch(_ context.Context, conversationID string) (int64, error) {
	m.ledgerMu.RLock()
	defer m.ledgerMu.RUnlock()

	var latest int64
	for key := range m.dispatches {
		if key.conversationID == conversationID && key.epoch > latest {
			latest = key.epoch
		}
	}
	return latest, nil
}

func (m *MemoryStore) ReapStaleClaims(_ context.Context, olderThan time.Time) (int64, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	var n int64
	for key, rec := range m.dispatches {
		if !rec.IsSent() && rec.ClaimedAt.Before(olderThan) {
			delete(m.dispatches, key)
			n++
		}
	}
	return n, nil
}

// Arm confirmation operations
func (m *MemoryStore) CreateArmConfirmation(_ context.Context, confirmation *models.ArmConfirmation) error {
	m.confirmMu.Lock()
	defer m.confirmMu.Unlock()

	c := *confirmation
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.confirmations[c.Token] = &c
	return nil
}

func (m *MemoryStore) ConsumeArmConfirmation(_ context.Context, token, conversationID string, now time.Time) error {
	m.confirmMu.Lock()
	defer m.confirmMu.Unlock()

	c, exists := m.confirmations[token]
	if !exists || !c.IsValid(conversationID, now) {
		return followup.ErrConfirmationRequired
	}
	usedAt := now.UTC()
	c.UsedAt = &usedAt
	return nil
}

func (m *MemoryStore) DeleteExpiredArmConfirmations(_ context.Context, now time.Time) (int64, error) {
	m.confirmMu.Lock()
	defer m.confirmMu.Unlock()

	var n int64
	for token, c := range m.confirmations {
		if c.UsedAt != nil || !now.Before(c.ExpiresAt) {
			delete(m.confirmations, token)
			n++
		}
	}
	return n, nil
}
