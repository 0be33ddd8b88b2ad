package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a new message. The assigned id and creation time are
// written back into msg.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Status == "" {
		msg.Status = domain.MessageSent
	}

	model := &domain.MessageModel{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Type:      msg.Type,
		Status:    msg.Status,
		ReplyToID: msg.ReplyToID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	msg.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a message by ID, deleted or not.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// messageRow carries a message joined with its sender's profile.
type messageRow struct {
	domain.MessageModel
	SenderUsername string
	SenderAvatar   string
}

func (r *GormMessageRepository) baseQuery(ctx context.Context, roomID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("messages").
		Select("messages.*, users.username AS sender_username, users.avatar AS sender_avatar").
		Joins("LEFT JOIN users ON users.id = messages.sender_id").
		Where("messages.room_id = ? AND messages.deleted_at IS NULL", roomID)
}

// Recent returns up to limit non-deleted messages for a room, newest
// first, with sender details attached.
func (r *GormMessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	var rows []messageRow
	result := r.baseQuery(ctx, roomID).
		Order("messages.created_at DESC").
		Limit(limit).
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	return rowsToMessages(rows), nil
}

// History returns a page of non-deleted messages, newest first, plus
// the total count.
func (r *GormMessageRepository) History(ctx context.Context, roomID string, page, limit int) ([]*domain.Message, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("room_id = ? AND deleted_at IS NULL", roomID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []messageRow
	result := r.baseQuery(ctx, roomID).
		Order("messages.created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Scan(&rows)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return rowsToMessages(rows), total, nil
}

// Edit replaces the content of a non-deleted message.
func (r *GormMessageRepository) Edit(ctx context.Context, id, content string, editedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": editedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SoftDelete marks a message deleted without removing the row, so
// reply chains stay resolvable.
func (r *GormMessageRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", deletedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func rowsToMessages(rows []messageRow) []*domain.Message {
	messages := make([]*domain.Message, len(rows))
	for i := range rows {
		msg := rows[i].MessageModel.ToDomain()
		msg.SenderUsername = rows[i].SenderUsername
		msg.SenderAvatar = rows[i].SenderAvatar
		messages[i] = msg
	}
	return messages
}
