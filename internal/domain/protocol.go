package domain

// WebSocket message types from client.
const (
	MsgTypeAuthenticate   = "authenticate"
	MsgTypeJoinRoom       = "join_room"
	MsgTypeLeaveRoom      = "leave_room"
	MsgTypeSendMessage    = "send_message"
	MsgTypeEditMessage    = "edit_message"
	MsgTypeDeleteMessage  = "delete_message"
	MsgTypeTypingStart    = "typing_start"
	MsgTypeTypingStop     = "typing_stop"
	MsgTypeGetRooms       = "get_rooms"
	MsgTypeGetOnlineUsers = "get_online_users"
	MsgTypeGetMessages    = "get_messages"
	MsgTypeUpdateStatus   = "update_status"
	MsgTypePing           = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthenticated    = "authenticated"
	MsgTypeMessagesHistory  = "messages_history"
	MsgTypeNewMessage       = "new_message"
	MsgTypeMessageEdited    = "message_edited"
	MsgTypeMessageDeleted   = "message_deleted"
	MsgTypeRoomsList        = "rooms_list"
	MsgTypeOnlineUsers      = "online_users"
	MsgTypeUserStatusUpdate = "user_status_update"
	MsgTypeRoomLeft         = "room_left"
	MsgTypeError            = "error"
	MsgTypePong             = "pong"
)

// Error codes carried by ErrorEvent.
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotMember     = "NOT_A_MEMBER"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseEvent carries the type discriminator for all WebSocket messages.
type BaseEvent struct {
	Type string `json:"type"`
}

// Client -> Server events

type AuthenticateEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinRoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type LeaveRoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type SendMessageEvent struct {
	Type        string      `json:"type"`
	RoomID      string      `json:"room_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	ReplyToID   string      `json:"reply_to_id,omitempty"`
}

type EditMessageEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type DeleteMessageEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

type TypingEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id,omitempty"` // filled by server on broadcast
}

type GetMessagesEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
}

type UpdateStatusEvent struct {
	Type   string     `json:"type"`
	Status UserStatus `json:"status"`
}

// Server -> Client events

type AuthenticatedEvent struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type MessagesHistoryEvent struct {
	Type     string     `json:"type"`
	RoomID   string     `json:"room_id"`
	Messages []*Message `json:"messages"`
}

type NewMessageEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type MessageEditedEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type MessageDeletedEvent struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

type RoomsListEvent struct {
	Type  string          `json:"type"`
	Rooms []*RoomResponse `json:"rooms"`
}

type OnlineUsersEvent struct {
	Type  string         `json:"type"`
	Users []UserResponse `json:"users"`
}

type UserStatusUpdateEvent struct {
	Type   string     `json:"type"`
	UserID string     `json:"user_id"`
	Status UserStatus `json:"status"`
}

type RoomLeftEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEvent builds an error event for the real-time channel.
// Errors are non-fatal to the connection.
func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
