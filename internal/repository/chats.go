package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/journal-coach/internal/model"
)

// MemoryChatRepository keeps chat ownership in process.
type MemoryChatRepository struct {
	mu    sync.RWMutex
	chats map[string][]model.ChatRef

	// Fail, when set, is returned by every call.
	Fail error
}

// NewMemoryChatRepository creates an empty repository.
func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{chats: make(map[string][]model.ChatRef)}
}

func (r *MemoryChatRepository) RecordChat(_ context.Context, ownerID, chatID, chatGroupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}

	for _, ref := range r.chats[ownerID] {
		if ref.ChatID == chatID {
			return nil
		}
	}
	r.chats[ownerID] = append(r.chats[ownerID], model.ChatRef{
		OwnerID:     ownerID,
		ChatID:      chatID,
		ChatGroupID: chatGroupID,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (r *MemoryChatRepository) ChatsByOwner(_ context.Context, ownerID string) ([]model.ChatRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Fail != nil {
		return nil, r.Fail
	}

	out := make([]model.ChatRef, len(r.chats[ownerID]))
	copy(out, r.chats[ownerID])
	return out, nil
}

func (r *MemoryChatRepository) OwnsChatGroup(_ context.Context, ownerID, chatGroupID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Fail != nil {
		return false, r.Fail
	}

	for _, ref := range r.chats[ownerID] {
		if ref.ChatGroupID == chatGroupID {
			return true, nil
		}
	}
	return false, nil
}

// chatRecord is the table row for an owned chat.
type chatRecord struct {
	OwnerID     string    `gorm:"type:varchar(128);primaryKey;index:idx_chats_owner_group,priority:1"`
	ChatID      string    `gorm:"type:varchar(128);primaryKey"`
	ChatGroupID string    `gorm:"type:varchar(128);not null;index:idx_chats_owner_group,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (chatRecord) TableName() string {
	return "journal_chats"
}

func (r *chatRecord) toModel() model.ChatRef {
	return model.ChatRef{
		OwnerID:     r.OwnerID,
		ChatID:      r.ChatID,
		ChatGroupID: r.ChatGroupID,
		CreatedAt:   r.CreatedAt,
	}
}

// PostgresChatRepository stores chat ownership with GORM.
type PostgresChatRepository struct {
	db *gorm.DB
}

// NewPostgresChatRepository creates a repository on db.
func NewPostgresChatRepository(db *gorm.DB) *PostgresChatRepository {
	return &PostgresChatRepository{db: db}
}

func (r *PostgresChatRepository) RecordChat(ctx context.Context, ownerID, chatID, chatGroupID string) error {
	rec := &chatRecord{
		OwnerID:     ownerID,
		ChatID:      chatID,
		ChatGroupID: chatGroupID,
		CreatedAt:   time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return nil
}

func (r *PostgresChatRepository) ChatsByOwner(ctx context.Context, ownerID string) ([]model.ChatRef, error) {
	var records []chatRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	refs := make([]model.ChatRef, len(records))
	for i := range records {
		refs[i] = records[i].toModel()
	}
	return refs, nil
}

func (r *PostgresChatRepository) OwnsChatGroup(ctx context.Context, ownerID, chatGroupID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chatRecord{}).
		Where("owner_id = ? AND chat_group_id = ?", ownerID, chatGroupID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return count > 0, nil
}
