package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

// MessageType is the content type of a chat message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageVoice    MessageType = "voice"
	MessageVideo    MessageType = "video"
	MessageLocation MessageType = "location"
	MessageSystem   MessageType = "system"
)

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// MaxMessageLength is the upper bound on message content, in runes.
const MaxMessageLength = 4000

var (
	ErrEmptyContent   = errors.New("message content must not be empty")
	ErrContentTooLong = errors.New("message content exceeds maximum length")
	ErrBadMessageType = errors.New("unknown message type")
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageVoice,
		MessageVideo, MessageLocation, MessageSystem:
		return true
	}
	return false
}

// ValidateContent checks message content and type against the closed
// enumeration and length bounds.
func ValidateContent(content string, msgType MessageType) error {
	if content == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return ErrContentTooLong
	}
	if !ValidMessageType(msgType) {
		return ErrBadMessageType
	}
	return nil
}

// MessageModel is the GORM model for the messages table.
// Room and sender are immutable after creation; deletes are soft so
// reply chains stay resolvable.
type MessageModel struct {
	ID        string        `gorm:"type:varchar(36);primaryKey"`
	RoomID    string        `gorm:"type:varchar(36);not null;index:idx_messages_room_created"`
	SenderID  string        `gorm:"type:varchar(36);not null;index"`
	Content   string        `gorm:"type:text;not null"`
	Type      MessageType   `gorm:"type:varchar(16);not null;default:text"`
	Status    MessageStatus `gorm:"type:varchar(16);not null;default:sent"`
	ReplyToID string        `gorm:"type:varchar(36)"`
	EditedAt  *time.Time
	DeletedAt *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index:idx_messages_room_created"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		Status:    m.Status,
		ReplyToID: m.ReplyToID,
		EditedAt:  m.EditedAt,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
	}
}

// Message represents a chat message.
type Message struct {
	ID             string        `json:"id"`
	RoomID         string        `json:"room_id"`
	SenderID       string        `json:"sender_id"`
	SenderUsername string        `json:"sender_username,omitempty"`
	SenderAvatar   string        `json:"sender_avatar,omitempty"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Status         MessageStatus `json:"status"`
	ReplyToID      string        `json:"reply_to_id,omitempty"`
	EditedAt       *time.Time    `json:"edited_at,omitempty"`
	DeletedAt      *time.Time    `json:"deleted_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Deleted reports whether the message has been soft-deleted.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}
