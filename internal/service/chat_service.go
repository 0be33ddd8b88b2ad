package service

import (
	"context"
	"errors"
	"time"

	"github.com/nebulo-im/nebulo/internal/audit"
	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/hub"
	"github.com/nebulo-im/nebulo/internal/repository"
	"github.com/nebulo-im/nebulo/internal/stream"
	"github.com/nebulo-im/nebulo/pkg/jwt"
	"github.com/nebulo-im/nebulo/pkg/log"
)

var (
	ErrNotMember       = errors.New("not a member of this room")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMessageOwner = errors.New("only the sender may edit this message")
	ErrCannotDelete    = errors.New("not allowed to delete this message")
	ErrSelfRoom        = errors.New("cannot open a direct room with yourself")
	ErrInvalidToken    = errors.New("invalid token")
)

const historyLimit = 50

// chatServiceImpl implements ChatService.
type chatServiceImpl struct {
	userRepo repository.UserRepository
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository

	h          *hub.Hub
	jwtManager *jwt.Manager
	producer   stream.Producer

	// roomLocks serializes persist-then-broadcast per room, so every
	// subscriber observes the same message order as the database.
	roomLocks *keyedMutex
}

// NewChatService creates a new chat service.
func NewChatService(
	userRepo repository.UserRepository,
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	h *hub.Hub,
	jwtManager *jwt.Manager,
	producer stream.Producer,
) ChatService {
	return &chatServiceImpl{
		userRepo:   userRepo,
		roomRepo:   roomRepo,
		msgRepo:    msgRepo,
		h:          h,
		jwtManager: jwtManager,
		producer:   producer,
		roomLocks:  newKeyedMutex(),
	}
}

// Authenticate resolves a gateway token to its user.
func (s *chatServiceImpl) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil || claims.Type != "access" {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// Connect registers an authenticated connection. The user goes online
// only on their first connection; further tabs and devices are silent.
func (s *chatServiceImpl) Connect(ctx context.Context, c *hub.Client) {
	l := log.Ctx(ctx)

	first := s.h.Register(c)
	l.Info().
		Str(log.FieldUserID, c.UserID).
		Str(log.FieldClientID, c.ID).
		Bool("first_connection", first).
		Msg("client connected")

	if !first {
		return
	}
	if err := s.userRepo.UpdateStatus(ctx, c.UserID, domain.StatusOnline, time.Now().UTC()); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, c.UserID).Msg("failed to mark user online")
	}
	s.broadcastStatus(ctx, c.UserID, domain.StatusOnline)
}

// Disconnect unregisters a connection. The user goes offline only when
// their last connection drops; durable room memberships are untouched.
func (s *chatServiceImpl) Disconnect(ctx context.Context, c *hub.Client) {
	l := log.Ctx(ctx)

	last := s.h.Unregister(c)
	l.Info().
		Str(log.FieldUserID, c.UserID).
		Str(log.FieldClientID, c.ID).
		Bool("last_connection", last).
		Msg("client disconnected")

	if !last || c.UserID == "" {
		return
	}
	if err := s.userRepo.UpdateStatus(ctx, c.UserID, domain.StatusOffline, time.Now().UTC()); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, c.UserID).Msg("failed to mark user offline")
	}
	s.broadcastStatus(ctx, c.UserID, domain.StatusOffline)
}

// JoinRoom subscribes the connection to a room it is a member of and
// returns recent history, oldest first. Joining twice is harmless.
func (s *chatServiceImpl) JoinRoom(ctx context.Context, c *hub.Client, roomID string) ([]*domain.Message, error) {
	if _, err := s.membership(ctx, c.UserID, roomID); err != nil {
		return nil, err
	}

	s.h.JoinRoom(c, roomID)

	messages, err := s.msgRepo.Recent(ctx, roomID, historyLimit)
	if err != nil {
		return nil, err
	}
	// Newest-first from storage, oldest-first on the wire.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	var lastRead string
	if len(messages) > 0 {
		lastRead = messages[len(messages)-1].ID
	}
	if err := s.roomRepo.ResetUnread(ctx, c.UserID, roomID, lastRead); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to reset unread count")
	}

	audit.LogWithDetail(ctx, audit.ActionJoinRoom, c.UserID, roomID, "joined room")
	return messages, nil
}

// LeaveRoom unsubscribes one connection from the room's delivery
// group. The durable membership stays intact; the user can join again
// at any time. RevokeMembership is the operation that ends membership.
func (s *chatServiceImpl) LeaveRoom(ctx context.Context, c *hub.Client, roomID string) error {
	if _, err := s.membership(ctx, c.UserID, roomID); err != nil {
		return err
	}
	s.h.LeaveRoom(c, roomID)
	return nil
}

// RevokeMembership deactivates the user's membership and drops every
// live connection of theirs from the room's delivery group.
func (s *chatServiceImpl) RevokeMembership(ctx context.Context, userID, roomID string) error {
	if err := s.roomRepo.DeactivateMembership(ctx, userID, roomID); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return ErrNotMember
		}
		return err
	}

	s.h.UnsubscribeUser(userID, roomID)

	audit.LogWithDetail(ctx, audit.ActionLeaveRoom, userID, roomID, "membership revoked")
	return nil
}

// SendMessage validates, persists, and fans out one message. The
// per-room lock makes the persisted order and the broadcast order
// identical for every subscriber.
func (s *chatServiceImpl) SendMessage(ctx context.Context, c *hub.Client, ev *domain.SendMessageEvent) (*domain.Message, error) {
	msgType := ev.MessageType
	if msgType == "" {
		msgType = domain.MessageText
	}
	if err := domain.ValidateContent(ev.Content, msgType); err != nil {
		return nil, err
	}
	if _, err := s.membership(ctx, c.UserID, ev.RoomID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		RoomID:         ev.RoomID,
		SenderID:       c.UserID,
		SenderUsername: c.Username,
		Content:        ev.Content,
		Type:           msgType,
		Status:         domain.MessageSent,
		ReplyToID:      ev.ReplyToID,
	}

	s.roomLocks.Lock(ev.RoomID)
	defer s.roomLocks.Unlock(ev.RoomID)

	if err := s.msgRepo.Create(ctx, msg); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, ev.RoomID).Msg("failed to persist message")
		return nil, err
	}
	if err := s.roomRepo.TouchActivity(ctx, ev.RoomID, msg.CreatedAt); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, ev.RoomID).Msg("failed to touch room activity")
	}
	if err := s.roomRepo.IncrementUnread(ctx, ev.RoomID, c.UserID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, ev.RoomID).Msg("failed to increment unread counts")
	}

	if err := s.producer.PublishMessage(ctx, msg); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to publish message event")
	}

	s.h.BroadcastToRoom(ev.RoomID, &domain.NewMessageEvent{
		Type:    domain.MsgTypeNewMessage,
		Message: msg,
	})
	return msg, nil
}

// EditMessage replaces a message's content. Only the sender may edit,
// and only while their membership is still active.
func (s *chatServiceImpl) EditMessage(ctx context.Context, c *hub.Client, messageID, content string) (*domain.Message, error) {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.Deleted() {
		return nil, ErrMessageNotFound
	}
	if _, err := s.membership(ctx, c.UserID, msg.RoomID); err != nil {
		return nil, err
	}
	if msg.SenderID != c.UserID {
		return nil, ErrNotMessageOwner
	}
	if err := domain.ValidateContent(content, msg.Type); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	s.roomLocks.Lock(msg.RoomID)
	defer s.roomLocks.Unlock(msg.RoomID)

	if err := s.msgRepo.Edit(ctx, messageID, content, now); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	msg.Content = content
	msg.EditedAt = &now
	msg.SenderUsername = c.Username

	s.h.BroadcastToRoom(msg.RoomID, &domain.MessageEditedEvent{
		Type:    domain.MsgTypeMessageEdited,
		Message: msg,
	})
	return msg, nil
}

// DeleteMessage soft-deletes a message. Callers must hold an active
// membership; the sender may delete their own, room admins and owners
// may delete anyone's.
func (s *chatServiceImpl) DeleteMessage(ctx context.Context, c *hub.Client, messageID string) error {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if msg.Deleted() {
		return ErrMessageNotFound
	}

	member, err := s.membership(ctx, c.UserID, msg.RoomID)
	if err != nil {
		return err
	}
	if msg.SenderID != c.UserID && !member.CanDeleteMessages() {
		return ErrCannotDelete
	}

	s.roomLocks.Lock(msg.RoomID)
	defer s.roomLocks.Unlock(msg.RoomID)

	if err := s.msgRepo.SoftDelete(ctx, messageID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	s.h.BroadcastToRoom(msg.RoomID, &domain.MessageDeletedEvent{
		Type:      domain.MsgTypeMessageDeleted,
		RoomID:    msg.RoomID,
		MessageID: messageID,
	})

	audit.LogWithDetail(ctx, audit.ActionDeleteMessage, c.UserID, messageID, "message deleted")
	return nil
}

// Typing relays a typing indicator to everyone else in the room. It is
// fire-and-forget: no persistence, silent drop for non-members.
func (s *chatServiceImpl) Typing(ctx context.Context, c *hub.Client, roomID string, typing bool) {
	if _, err := s.membership(ctx, c.UserID, roomID); err != nil {
		return
	}

	eventType := domain.MsgTypeTypingStop
	if typing {
		eventType = domain.MsgTypeTypingStart
	}
	s.h.BroadcastToRoomExcept(roomID, c.ID, &domain.TypingEvent{
		Type:   eventType,
		RoomID: roomID,
		UserID: c.UserID,
	})
}

// UpdateStatus persists the user's chosen status and tells the users
// who share a room with them.
func (s *chatServiceImpl) UpdateStatus(ctx context.Context, c *hub.Client, status domain.UserStatus) error {
	if !domain.ValidUserStatus(status) {
		return ErrBadStatus
	}
	if err := s.userRepo.UpdateStatus(ctx, c.UserID, status, time.Now().UTC()); err != nil {
		return err
	}
	s.broadcastStatus(ctx, c.UserID, status)
	return nil
}

// GetRooms returns the caller's rooms decorated with members, last
// message, and unread count, most recently active first.
func (s *chatServiceImpl) GetRooms(ctx context.Context, userID string) ([]*domain.RoomResponse, error) {
	rooms, memberships, err := s.roomRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp, err := s.roomResponse(ctx, room, memberships[room.ID], userID)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to decorate room")
			continue
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// GetMessages returns a page of room history for a member.
func (s *chatServiceImpl) GetMessages(ctx context.Context, userID, roomID string, page, limit int) ([]*domain.Message, int64, error) {
	if _, err := s.membership(ctx, userID, roomID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > historyLimit {
		limit = historyLimit
	}
	return s.msgRepo.History(ctx, roomID, page, limit)
}

// CreateDirectRoom opens, or returns the existing, private room
// between the caller and another user.
func (s *chatServiceImpl) CreateDirectRoom(ctx context.Context, userID, otherIdentifier string) (*domain.RoomResponse, error) {
	other, err := s.userRepo.GetByIdentifier(ctx, otherIdentifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if other.ID == userID {
		return nil, ErrSelfRoom
	}

	// Reuse an existing private room with this user if one exists.
	rooms, memberships, err := s.roomRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		if room.Kind != domain.RoomPrivate {
			continue
		}
		if _, err := s.roomRepo.GetActiveMembership(ctx, other.ID, room.ID); err == nil {
			return s.roomResponse(ctx, room, memberships[room.ID], userID)
		}
	}

	room := &domain.Room{
		Name:      other.Username,
		Kind:      domain.RoomPrivate,
		CreatedBy: userID,
	}
	members := []*domain.Membership{
		{UserID: userID, Role: domain.RoleMember},
		{UserID: other.ID, Role: domain.RoleMember},
	}
	if err := s.roomRepo.Create(ctx, room, members); err != nil {
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionCreateRoom, userID, room.ID, "direct room created")
	return s.roomResponse(ctx, room, members[0], userID)
}

// CreateGroupRoom creates a group chat owned by the caller.
func (s *chatServiceImpl) CreateGroupRoom(ctx context.Context, userID string, req *domain.CreateGroupRequest) (*domain.RoomResponse, error) {
	room := &domain.Room{
		Name:      req.Name,
		Kind:      domain.RoomGroup,
		CreatedBy: userID,
	}

	members := []*domain.Membership{{UserID: userID, Role: domain.RoleOwner}}
	for _, memberID := range req.MemberIDs {
		if memberID == userID {
			continue
		}
		if _, err := s.userRepo.GetByID(ctx, memberID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		members = append(members, &domain.Membership{UserID: memberID, Role: domain.RoleMember})
	}

	if err := s.roomRepo.Create(ctx, room, members); err != nil {
		return nil, err
	}

	// The group opens with a system message so new joiners see how it
	// started. Creation already succeeded, so a failure here only logs.
	creator, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		opening := &domain.Message{
			RoomID:   room.ID,
			SenderID: userID,
			Content:  creator.Username + " created the group \"" + req.Name + "\"",
			Type:     domain.MessageSystem,
			Status:   domain.MessageSent,
		}
		err = s.msgRepo.Create(ctx, opening)
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to write group opening message")
	}

	audit.LogWithDetail(ctx, audit.ActionCreateRoom, userID, room.ID, "group room created")
	return s.roomResponse(ctx, room, members[0], userID)
}

// membership returns the caller's active membership or ErrNotMember.
// A missing room reports ErrRoomNotFound.
func (s *chatServiceImpl) membership(ctx context.Context, userID, roomID string) (*domain.Membership, error) {
	member, err := s.roomRepo.GetActiveMembership(ctx, userID, roomID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, repository.ErrMembershipNotFound) {
		return nil, err
	}
	if _, roomErr := s.roomRepo.GetByID(ctx, roomID); roomErr != nil {
		if errors.Is(roomErr, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, roomErr
	}
	return nil, ErrNotMember
}

// broadcastStatus tells every user sharing at least one room with
// userID about a presence change. Strangers learn nothing.
func (s *chatServiceImpl) broadcastStatus(ctx context.Context, userID string, status domain.UserStatus) {
	peers, err := s.peerIDs(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to resolve presence peers")
		return
	}
	s.h.SendToUsers(peers, &domain.UserStatusUpdateEvent{
		Type:   domain.MsgTypeUserStatusUpdate,
		UserID: userID,
		Status: status,
	})
}

func (s *chatServiceImpl) peerIDs(ctx context.Context, userID string) ([]string, error) {
	rooms, _, err := s.roomRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var peers []string
	for _, room := range rooms {
		members, err := s.roomRepo.ListActiveMembers(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.UserID == userID {
				continue
			}
			if _, ok := seen[m.UserID]; ok {
				continue
			}
			seen[m.UserID] = struct{}{}
			peers = append(peers, m.UserID)
		}
	}
	return peers, nil
}

// roomResponse decorates a room with members, last message, and the
// caller's membership view.
func (s *chatServiceImpl) roomResponse(ctx context.Context, room *domain.Room, member *domain.Membership, userID string) (*domain.RoomResponse, error) {
	memberships, err := s.roomRepo.ListActiveMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	users := make([]domain.UserResponse, 0, len(memberships))
	name := room.Name
	for _, m := range memberships {
		user, err := s.userRepo.GetByID(ctx, m.UserID)
		if err != nil {
			continue
		}
		users = append(users, user.ToResponse())
		// A private room presents as the other participant.
		if room.Kind == domain.RoomPrivate && m.UserID != userID {
			name = user.Username
		}
	}

	var lastMessage *domain.Message
	if recent, err := s.msgRepo.Recent(ctx, room.ID, 1); err == nil && len(recent) > 0 {
		lastMessage = recent[0]
	}

	resp := &domain.RoomResponse{
		ID:           room.ID,
		Name:         name,
		Kind:         room.Kind,
		Avatar:       room.Avatar,
		Description:  room.Description,
		Members:      users,
		LastMessage:  lastMessage,
		LastActivity: room.LastActivity,
		CreatedAt:    room.CreatedAt,
	}
	if member != nil {
		resp.UnreadCount = member.UnreadCount
		resp.Role = member.Role
	}
	return resp, nil
}
