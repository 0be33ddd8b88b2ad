package domain

import (
	"time"
)

// RoomKind distinguishes 1:1 chats, group chats, and broadcast channels.
type RoomKind string

const (
	RoomPrivate RoomKind = "private"
	RoomGroup   RoomKind = "group"
	RoomChannel RoomKind = "channel"
)

// MemberRole is the role a user holds inside a room.
type MemberRole string

const (
	RoleMember MemberRole = "member"
	RoleAdmin  MemberRole = "admin"
	RoleOwner  MemberRole = "owner"
)

// RoomModel is the GORM model for the chat_rooms table.
type RoomModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Name         string    `gorm:"type:varchar(100);not null"`
	Kind         RoomKind  `gorm:"type:varchar(16);not null;default:private;index"`
	Avatar       string    `gorm:"type:varchar(255)"`
	Description  string    `gorm:"type:text"`
	CreatedBy    string    `gorm:"type:varchar(36);not null"`
	LastActivity time.Time `gorm:"index;autoCreateTime"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:           m.ID,
		Name:         m.Name,
		Kind:         m.Kind,
		Avatar:       m.Avatar,
		Description:  m.Description,
		CreatedBy:    m.CreatedBy,
		LastActivity: m.LastActivity,
		CreatedAt:    m.CreatedAt,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:           r.ID,
		Name:         r.Name,
		Kind:         r.Kind,
		Avatar:       r.Avatar,
		Description:  r.Description,
		CreatedBy:    r.CreatedBy,
		LastActivity: r.LastActivity,
		CreatedAt:    r.CreatedAt,
	}
}

// Room represents a chat room entity.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         RoomKind  `json:"type"`
	Avatar       string    `json:"avatar,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedBy    string    `json:"created_by"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// MembershipModel is the GORM model for the chat_room_members join table.
// Exactly one active row may exist per (user, room) pair; leaving a room
// flips Active to false instead of deleting the row.
type MembershipModel struct {
	ID                string     `gorm:"type:varchar(36);primaryKey"`
	UserID            string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_member_user_room"`
	RoomID            string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_member_user_room;index"`
	Role              MemberRole `gorm:"type:varchar(16);not null;default:member"`
	UnreadCount       int        `gorm:"not null;default:0"`
	LastReadMessageID string     `gorm:"type:varchar(36)"`
	Active            bool       `gorm:"not null;default:true"`
	JoinedAt          time.Time  `gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for MembershipModel.
func (MembershipModel) TableName() string {
	return "chat_room_members"
}

// ToDomain converts MembershipModel to domain Membership.
func (m *MembershipModel) ToDomain() *Membership {
	return &Membership{
		ID:                m.ID,
		UserID:            m.UserID,
		RoomID:            m.RoomID,
		Role:              m.Role,
		UnreadCount:       m.UnreadCount,
		LastReadMessageID: m.LastReadMessageID,
		Active:            m.Active,
		JoinedAt:          m.JoinedAt,
	}
}

// Membership represents a user's durable membership in a room.
type Membership struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	RoomID            string     `json:"room_id"`
	Role              MemberRole `json:"role"`
	UnreadCount       int        `json:"unread_count"`
	LastReadMessageID string     `json:"last_read_message_id,omitempty"`
	Active            bool       `json:"active"`
	JoinedAt          time.Time  `json:"joined_at"`
}

// CanDeleteMessages reports whether this member may delete other
// members' messages.
func (m *Membership) CanDeleteMessages() bool {
	return m.Role == RoleAdmin || m.Role == RoleOwner
}

// CreateDirectRequest represents a 1:1 chat creation request. User may
// be a username, email, or id.
type CreateDirectRequest struct {
	User string `json:"user" binding:"required"`
}

// CreateGroupRequest represents a group chat creation request.
type CreateGroupRequest struct {
	Name      string   `json:"name" binding:"required,min=1,max=100"`
	MemberIDs []string `json:"member_ids" binding:"required,min=1"`
}

// RoomResponse is a room decorated with the caller's membership view.
type RoomResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         RoomKind       `json:"type"`
	Avatar       string         `json:"avatar,omitempty"`
	Description  string         `json:"description,omitempty"`
	Members      []UserResponse `json:"members"`
	LastMessage  *Message       `json:"last_message,omitempty"`
	UnreadCount  int            `json:"unread_count"`
	Role         MemberRole     `json:"role"`
	LastActivity time.Time      `json:"last_activity"`
	CreatedAt    time.Time      `json:"created_at"`
}
