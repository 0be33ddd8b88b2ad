package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create stores the room and its initial memberships in one transaction.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room, memberships []*domain.Membership) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.LastActivity.IsZero() {
		room.LastActivity = time.Now().UTC()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roomModel := domain.RoomToModel(room)
		if err := tx.Create(roomModel).Error; err != nil {
			return err
		}
		room.CreatedAt = roomModel.CreatedAt

		for _, m := range memberships {
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			m.RoomID = room.ID
			model := &domain.MembershipModel{
				ID:     m.ID,
				UserID: m.UserID,
				RoomID: m.RoomID,
				Role:   m.Role,
				Active: true,
			}
			if err := tx.Create(model).Error; err != nil {
				return err
			}
			m.Active = true
			m.JoinedAt = model.JoinedAt
		}
		return nil
	})
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListForUser returns rooms the user holds an active membership in,
// most recently active first, with the caller's membership attached.
func (r *GormRoomRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Room, map[string]*domain.Membership, error) {
	var memberModels []domain.MembershipModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Find(&memberModels)
	if result.Error != nil {
		return nil, nil, result.Error
	}

	memberships := make(map[string]*domain.Membership, len(memberModels))
	roomIDs := make([]string, 0, len(memberModels))
	for i := range memberModels {
		m := memberModels[i].ToDomain()
		memberships[m.RoomID] = m
		roomIDs = append(roomIDs, m.RoomID)
	}
	if len(roomIDs) == 0 {
		return []*domain.Room{}, memberships, nil
	}

	var roomModels []domain.RoomModel
	result = r.db.WithContext(ctx).
		Where("id IN ?", roomIDs).
		Order("last_activity DESC").
		Find(&roomModels)
	if result.Error != nil {
		return nil, nil, result.Error
	}

	rooms := make([]*domain.Room, len(roomModels))
	for i := range roomModels {
		rooms[i] = roomModels[i].ToDomain()
	}
	return rooms, memberships, nil
}

// GetActiveMembership returns the active membership for (user, room).
func (r *GormRoomRepository) GetActiveMembership(ctx context.Context, userID, roomID string) (*domain.Membership, error) {
	var model domain.MembershipModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ? AND active = ?", userID, roomID, true).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListActiveMembers returns all active memberships of a room.
func (r *GormRoomRepository) ListActiveMembers(ctx context.Context, roomID string) ([]*domain.Membership, error) {
	var models []domain.MembershipModel
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND active = ?", roomID, true).
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	members := make([]*domain.Membership, len(models))
	for i := range models {
		members[i] = models[i].ToDomain()
	}
	return members, nil
}

// TouchActivity bumps the room's last-activity timestamp.
func (r *GormRoomRepository) TouchActivity(ctx context.Context, roomID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("id = ?", roomID).
		Update("last_activity", at).Error
}

// IncrementUnread bumps the unread counter of every active member
// except the sender.
func (r *GormRoomRepository) IncrementUnread(ctx context.Context, roomID, exceptUserID string) error {
	return r.db.WithContext(ctx).Model(&domain.MembershipModel{}).
		Where("room_id = ? AND user_id <> ? AND active = ?", roomID, exceptUserID, true).
		Update("unread_count", gorm.Expr("unread_count + 1")).Error
}

// ResetUnread zeroes the caller's unread counter and records the last
// read message.
func (r *GormRoomRepository) ResetUnread(ctx context.Context, userID, roomID, lastReadMessageID string) error {
	updates := map[string]interface{}{"unread_count": 0}
	if lastReadMessageID != "" {
		updates["last_read_message_id"] = lastReadMessageID
	}
	return r.db.WithContext(ctx).Model(&domain.MembershipModel{}).
		Where("user_id = ? AND room_id = ? AND active = ?", userID, roomID, true).
		Updates(updates).Error
}

// DeactivateMembership soft-deletes a membership (leave).
func (r *GormRoomRepository) DeactivateMembership(ctx context.Context, userID, roomID string) error {
	result := r.db.WithContext(ctx).Model(&domain.MembershipModel{}).
		Where("user_id = ? AND room_id = ? AND active = ?", userID, roomID, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMembershipNotFound
	}
	return nil
}
