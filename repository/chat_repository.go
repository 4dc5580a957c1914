package repository

import (
	"context"
	"fmt"
	"time"

	"torb/model"

	"gorm.io/gorm"
)

// ChatRepository persists chat messages and serves paginated history.
type ChatRepository interface {
	CreateMessage(ctx context.Context, msg *model.ChatMessage) error
	GetGlobalMessages(ctx context.Context, before *time.Time, limit int) ([]*model.ChatMessage, error)
}

// gormChatRepository is the GORM implementation.
type gormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a GORM chat repository.
func NewGormChatRepository(db *gorm.DB) ChatRepository {
	return &gormChatRepository{db: db}
}

// CreateMessage inserts one chat message.
func (r *gormChatRepository) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

// GetGlobalMessages returns global (untargeted) messages newest first.
// before, when set, pages through older history. limit is clamped to 1..200.
func (r *gormChatRepository) GetGlobalMessages(ctx context.Context, before *time.Time, limit int) ([]*model.ChatMessage, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := r.db.WithContext(ctx).
		Where("target = '' OR target IS NULL")
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	var messages []*model.ChatMessage
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return messages, nil
}
