package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/hub"
	"github.com/nebulo-im/nebulo/internal/service"
	"github.com/nebulo-im/nebulo/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from a separate origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades connections and speaks the gateway protocol.
// Every frame is a JSON object whose type field selects the handler;
// protocol errors are reported on the error event and never close the
// connection.
type WSHandler struct {
	h           *hub.Hub
	chatService service.ChatService
	userService service.UserService
	logger      zerolog.Logger
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, chatService service.ChatService, userService service.UserService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		h:           h,
		chatService: chatService,
		userService: userService,
		logger:      logger,
	}
}

// Serve upgrades the request and runs the connection's pumps.
func (w *WSHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(w.h, conn, w.logger)
	go client.WritePump()
	client.ReadPump(w.handleMessage, w.onClose)
}

func (w *WSHandler) onClose(c *hub.Client) {
	ctx := log.WithLogger(context.Background(), w.logger)
	w.chatService.Disconnect(ctx, c)
}

// handleMessage dispatches one inbound frame.
func (w *WSHandler) handleMessage(c *hub.Client, payload []byte) {
	ctx := log.WithLogger(context.Background(), w.logger)

	var base domain.BaseEvent
	if err := json.Unmarshal(payload, &base); err != nil {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "malformed message"))
		return
	}

	if base.Type == domain.MsgTypePing {
		c.SendEvent(domain.BaseEvent{Type: domain.MsgTypePong})
		return
	}

	if base.Type == domain.MsgTypeAuthenticate {
		w.authenticate(ctx, c, payload)
		return
	}

	if !c.Authenticated() {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeUnauthorized, "authenticate first"))
		return
	}

	switch base.Type {
	case domain.MsgTypeJoinRoom:
		w.joinRoom(ctx, c, payload)
	case domain.MsgTypeLeaveRoom:
		w.leaveRoom(ctx, c, payload)
	case domain.MsgTypeSendMessage:
		w.sendMessage(ctx, c, payload)
	case domain.MsgTypeEditMessage:
		w.editMessage(ctx, c, payload)
	case domain.MsgTypeDeleteMessage:
		w.deleteMessage(ctx, c, payload)
	case domain.MsgTypeTypingStart, domain.MsgTypeTypingStop:
		w.typing(ctx, c, payload, base.Type == domain.MsgTypeTypingStart)
	case domain.MsgTypeGetRooms:
		w.getRooms(ctx, c)
	case domain.MsgTypeGetOnlineUsers:
		w.getOnlineUsers(ctx, c)
	case domain.MsgTypeGetMessages:
		w.getMessages(ctx, c, payload)
	case domain.MsgTypeUpdateStatus:
		w.updateStatus(ctx, c, payload)
	default:
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

func (w *WSHandler) authenticate(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.AuthenticateEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "malformed message"))
		return
	}

	user, err := w.chatService.Authenticate(ctx, ev.Token)
	if err != nil {
		c.SendEvent(&domain.AuthenticatedEvent{
			Type:    domain.MsgTypeAuthenticated,
			Success: false,
			Message: "invalid token",
		})
		return
	}

	// A live connection is bound to its first identity; the hub tracks
	// presence by it. Re-authenticating as the same user only refreshes
	// the token, a different user must open a new connection.
	if c.Authenticated() {
		if c.UserID != user.ID {
			c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "connection is already authenticated"))
			return
		}
		c.Username = user.Username
	} else {
		c.UserID = user.ID
		c.Username = user.Username
		w.chatService.Connect(ctx, c)
	}

	c.SendEvent(&domain.AuthenticatedEvent{
		Type:    domain.MsgTypeAuthenticated,
		Success: true,
		UserID:  user.ID,
	})
}

func (w *WSHandler) joinRoom(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.JoinRoomEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.RoomID == "" {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "room_id is required"))
		return
	}

	messages, err := w.chatService.JoinRoom(ctx, c, ev.RoomID)
	if err != nil {
		c.SendEvent(errorEventFor(err))
		return
	}

	c.SendEvent(&domain.MessagesHistoryEvent{
		Type:     domain.MsgTypeMessagesHistory,
		RoomID:   ev.RoomID,
		Messages: messages,
	})
}

func (w *WSHandler) leaveRoom(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.LeaveRoomEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.RoomID == "" {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "room_id is required"))
		return
	}

	if err := w.chatService.LeaveRoom(ctx, c, ev.RoomID); err != nil {
		c.SendEvent(errorEventFor(err))
		return
	}

	c.SendEvent(&domain.RoomLeftEvent{
		Type:   domain.MsgTypeRoomLeft,
		RoomID: ev.RoomID,
	})
}

func (w *WSHandler) sendMessage(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.SendMessageEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.RoomID == "" {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "room_id is required"))
		return
	}

	// The sender receives the message through the room broadcast like
	// everyone else, so ordering is uniform.
	if _, err := w.chatService.SendMessage(ctx, c, &ev); err != nil {
		c.SendEvent(errorEventFor(err))
	}
}

func (w *WSHandler) editMessage(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.EditMessageEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.MessageID == "" {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "message_id is required"))
		return
	}

	if _, err := w.chatService.EditMessage(ctx, c, ev.MessageID, ev.Content); err != nil {
		c.SendEvent(errorEventFor(err))
	}
}

func (w *WSHandler) deleteMessage(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.DeleteMessageEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.MessageID == "" {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "message_id is required"))
		return
	}

	if err := w.chatService.DeleteMessage(ctx, c, ev.MessageID); err != nil {
		c.SendEvent(errorEventFor(err))
	}
}

func (w *WSHandler) typing(ctx context.Context, c *hub.Client, payload []byte, typing bool) {
	var ev domain.TypingEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.RoomID == "" {
		return
	}
	w.chatService.Typing(ctx, c, ev.RoomID, typing)
}

func (w *WSHandler) getRooms(ctx context.Context, c *hub.Client) {
	rooms, err := w.chatService.GetRooms(ctx, c.UserID)
	if err != nil {
		c.SendEvent(errorEventFor(err))
		return
	}
	c.SendEvent(&domain.RoomsListEvent{
		Type:  domain.MsgTypeRoomsList,
		Rooms: rooms,
	})
}

func (w *WSHandler) getOnlineUsers(ctx context.Context, c *hub.Client) {
	users, err := w.userService.OnlineUsers(ctx)
	if err != nil {
		c.SendEvent(errorEventFor(err))
		return
	}
	c.SendEvent(&domain.OnlineUsersEvent{
		Type:  domain.MsgTypeOnlineUsers,
		Users: users,
	})
}

func (w *WSHandler) getMessages(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.GetMessagesEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.RoomID == "" {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "room_id is required"))
		return
	}

	messages, _, err := w.chatService.GetMessages(ctx, c.UserID, ev.RoomID, ev.Page, ev.Limit)
	if err != nil {
		c.SendEvent(errorEventFor(err))
		return
	}

	c.SendEvent(&domain.MessagesHistoryEvent{
		Type:     domain.MsgTypeMessagesHistory,
		RoomID:   ev.RoomID,
		Messages: messages,
	})
}

func (w *WSHandler) updateStatus(ctx context.Context, c *hub.Client, payload []byte) {
	var ev domain.UpdateStatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "malformed message"))
		return
	}

	if err := w.chatService.UpdateStatus(ctx, c, ev.Status); err != nil {
		c.SendEvent(errorEventFor(err))
	}
}

// errorEventFor maps service errors to protocol error codes.
func errorEventFor(err error) *domain.ErrorEvent {
	switch {
	case errors.Is(err, service.ErrNotMember):
		return domain.NewErrorEvent(domain.ErrCodeNotMember, err.Error())
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return domain.NewErrorEvent(domain.ErrCodeNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		return domain.NewErrorEvent(domain.ErrCodeUnauthorized, err.Error())
	case errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrContentTooLong),
		errors.Is(err, domain.ErrBadMessageType),
		errors.Is(err, service.ErrBadStatus),
		errors.Is(err, service.ErrNotMessageOwner),
		errors.Is(err, service.ErrCannotDelete):
		return domain.NewErrorEvent(domain.ErrCodeBadRequest, err.Error())
	default:
		return domain.NewErrorEvent(domain.ErrCodeInternalError, "internal error")
	}
}
