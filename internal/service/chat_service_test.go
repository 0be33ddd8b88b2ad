package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/hub"
)

func (e *testEnv) connect(t *testing.T, auth *domain.AuthResponse) *hub.Client {
	t.Helper()

	c := hub.NewClient(e.hub, nil, zerolog.Nop())
	c.UserID = auth.User.ID
	c.Username = auth.User.Username
	e.chat.Connect(context.Background(), c)
	return c
}

func (e *testEnv) directRoom(t *testing.T, auth *domain.AuthResponse, other string) *domain.RoomResponse {
	t.Helper()

	room, err := e.chat.CreateDirectRoom(context.Background(), auth.User.ID, other)
	require.NoError(t, err)
	return room
}

func TestAuthenticate_Accepts_Access_Token_Only(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")

	user, err := env.chat.Authenticate(ctx, alice.AccessToken)
	req.NoError(err)
	req.Equal("alice", user.Username)

	_, err = env.chat.Authenticate(ctx, alice.RefreshToken)
	req.ErrorIs(err, ErrInvalidToken)

	_, err = env.chat.Authenticate(ctx, "garbage")
	req.ErrorIs(err, ErrInvalidToken)
}

func TestConnect_And_Disconnect_Flip_Presence_On_Edge_Connections(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")

	c1 := env.connect(t, alice)
	user, err := env.userRepo.GetByID(ctx, alice.User.ID)
	req.NoError(err)
	req.Equal(domain.StatusOnline, user.Status)

	// A second tab does not change anything; closing it neither.
	c2 := env.connect(t, alice)
	env.chat.Disconnect(ctx, c2)
	user, err = env.userRepo.GetByID(ctx, alice.User.ID)
	req.NoError(err)
	req.Equal(domain.StatusOnline, user.Status)

	env.chat.Disconnect(ctx, c1)
	user, err = env.userRepo.GetByID(ctx, alice.User.ID)
	req.NoError(err)
	req.Equal(domain.StatusOffline, user.Status)
}

func TestCreateDirectRoom_Is_Reused_And_Rejects_Self(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")

	room1 := env.directRoom(t, alice, "bob")
	room2 := env.directRoom(t, alice, "bob")
	req.Equal(room1.ID, room2.ID, "direct room must be reused")
	req.Equal(domain.RoomPrivate, room1.Kind)
	req.Len(room1.Members, 2)

	_, err := env.chat.CreateDirectRoom(ctx, alice.User.ID, "alice")
	req.ErrorIs(err, ErrSelfRoom)

	_, err = env.chat.CreateDirectRoom(ctx, alice.User.ID, "nobody")
	req.ErrorIs(err, ErrUserNotFound)
}

func TestJoinRoom_Requires_Membership(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")
	carol := env.register(t, "carol")

	room := env.directRoom(t, alice, "bob")
	stranger := env.connect(t, carol)

	_, err := env.chat.JoinRoom(ctx, stranger, room.ID)
	req.ErrorIs(err, ErrNotMember)

	_, err = env.chat.JoinRoom(ctx, stranger, "no-such-room")
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestSendMessage_Persists_And_Tracks_Unread(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	_, err := env.chat.JoinRoom(ctx, aliceConn, room.ID)
	req.NoError(err)

	msg, err := env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
		RoomID:  room.ID,
		Content: "hello bob",
	})
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal(domain.MessageText, msg.Type, "type defaults to text")
	req.Equal("alice", msg.SenderUsername)

	// Bob has not read the room; his unread counter moved, alice's not.
	bobMember, err := env.roomRepo.GetActiveMembership(ctx, bob.User.ID, room.ID)
	req.NoError(err)
	req.Equal(1, bobMember.UnreadCount)

	aliceMember, err := env.roomRepo.GetActiveMembership(ctx, alice.User.ID, room.ID)
	req.NoError(err)
	req.Equal(0, aliceMember.UnreadCount)
}

func TestSendMessage_Rejects_Invalid_Content_And_Non_Members(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")
	carol := env.register(t, "carol")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	carolConn := env.connect(t, carol)

	_, err := env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
		RoomID:  room.ID,
		Content: "",
	})
	req.ErrorIs(err, domain.ErrEmptyContent)

	_, err = env.chat.SendMessage(ctx, carolConn, &domain.SendMessageEvent{
		RoomID:  room.ID,
		Content: "let me in",
	})
	req.ErrorIs(err, ErrNotMember)
}

func TestJoinRoom_Returns_Recent_History_Oldest_First(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	_, err := env.chat.JoinRoom(ctx, aliceConn, room.ID)
	req.NoError(err)

	for i := 0; i < 55; i++ {
		_, err := env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
			RoomID:  room.ID,
			Content: fmt.Sprintf("msg-%d", i),
		})
		req.NoError(err)
	}

	bobConn := env.connect(t, bob)
	history, err := env.chat.JoinRoom(ctx, bobConn, room.ID)
	req.NoError(err)
	req.Len(history, 50, "history is capped at the most recent 50")
	req.Equal("msg-5", history[0].Content, "oldest of the window first")
	req.Equal("msg-54", history[len(history)-1].Content)

	// Joining marks the room read.
	bobMember, err := env.roomRepo.GetActiveMembership(ctx, bob.User.ID, room.ID)
	req.NoError(err)
	req.Equal(0, bobMember.UnreadCount)
}

func TestEditMessage_Only_By_Sender(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	bobConn := env.connect(t, bob)

	msg, err := env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
		RoomID:  room.ID,
		Content: "draft",
	})
	req.NoError(err)

	_, err = env.chat.EditMessage(ctx, bobConn, msg.ID, "hijacked")
	req.ErrorIs(err, ErrNotMessageOwner)

	edited, err := env.chat.EditMessage(ctx, aliceConn, msg.ID, "final")
	req.NoError(err)
	req.Equal("final", edited.Content)
	req.NotNil(edited.EditedAt)
}

func TestDeleteMessage_Sender_Or_Privileged_Member(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")

	// Alice owns the group; bob and carol are plain members.
	group, err := env.chat.CreateGroupRoom(ctx, alice.User.ID, &domain.CreateGroupRequest{
		Name:      "general",
		MemberIDs: []string{bob.User.ID, carol.User.ID},
	})
	req.NoError(err)
	req.Equal(domain.RoleOwner, group.Role)

	bobConn := env.connect(t, bob)
	carolConn := env.connect(t, carol)
	aliceConn := env.connect(t, alice)

	msg, err := env.chat.SendMessage(ctx, bobConn, &domain.SendMessageEvent{
		RoomID:  group.ID,
		Content: "delete me",
	})
	req.NoError(err)

	// A plain member cannot delete someone else's message.
	err = env.chat.DeleteMessage(ctx, carolConn, msg.ID)
	req.ErrorIs(err, ErrCannotDelete)

	// The owner can.
	req.NoError(env.chat.DeleteMessage(ctx, aliceConn, msg.ID))

	// Deleted messages disappear from history but the row survives.
	// Only the group's opening system message remains.
	history, err := env.chat.JoinRoom(ctx, bobConn, group.ID)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(domain.MessageSystem, history[0].Type)

	err = env.chat.DeleteMessage(ctx, aliceConn, msg.ID)
	req.ErrorIs(err, ErrMessageNotFound)
}

func TestLeaveRoom_Keeps_Membership(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	_, err := env.chat.JoinRoom(ctx, aliceConn, room.ID)
	req.NoError(err)
	req.NoError(env.chat.LeaveRoom(ctx, aliceConn, room.ID))

	// Leaving only drops the live subscription; the membership stays,
	// so sending and rejoining still work.
	_, err = env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
		RoomID:  room.ID,
		Content: "still a member",
	})
	req.NoError(err)

	history, err := env.chat.JoinRoom(ctx, aliceConn, room.ID)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("still a member", history[0].Content)
}

func TestRevokeMembership_Locks_User_Out(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	_, err := env.chat.JoinRoom(ctx, aliceConn, room.ID)
	req.NoError(err)

	req.NoError(env.chat.RevokeMembership(ctx, alice.User.ID, room.ID))

	_, err = env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
		RoomID:  room.ID,
		Content: "am I still here?",
	})
	req.ErrorIs(err, ErrNotMember)

	_, err = env.chat.JoinRoom(ctx, aliceConn, room.ID)
	req.ErrorIs(err, ErrNotMember)

	err = env.chat.RevokeMembership(ctx, alice.User.ID, room.ID)
	req.ErrorIs(err, ErrNotMember)
}

func TestEditAndDelete_Require_Active_Membership(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	room := env.directRoom(t, alice, "bob")

	bobConn := env.connect(t, bob)
	msg, err := env.chat.SendMessage(ctx, bobConn, &domain.SendMessageEvent{
		RoomID:  room.ID,
		Content: "while I was a member",
	})
	req.NoError(err)

	req.NoError(env.chat.RevokeMembership(ctx, bob.User.ID, room.ID))

	// A revoked sender cannot touch their old messages.
	_, err = env.chat.EditMessage(ctx, bobConn, msg.ID, "rewritten")
	req.ErrorIs(err, ErrNotMember)
	req.ErrorIs(env.chat.DeleteMessage(ctx, bobConn, msg.ID), ErrNotMember)
}

func TestGetRooms_Decorates_With_Unread_And_Last_Message(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	for _, content := range []string{"first", "second"} {
		_, err := env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
			RoomID:  room.ID,
			Content: content,
		})
		req.NoError(err)
	}

	rooms, err := env.chat.GetRooms(ctx, bob.User.ID)
	req.NoError(err)
	req.Len(rooms, 1)
	req.Equal("alice", rooms[0].Name, "private room presents as the other participant")
	req.Equal(2, rooms[0].UnreadCount)
	req.NotNil(rooms[0].LastMessage)
	req.Equal("second", rooms[0].LastMessage.Content)
}

func TestGetMessages_Paginates_For_Members_Only(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")
	carol := env.register(t, "carol")
	room := env.directRoom(t, alice, "bob")

	aliceConn := env.connect(t, alice)
	for i := 0; i < 5; i++ {
		_, err := env.chat.SendMessage(ctx, aliceConn, &domain.SendMessageEvent{
			RoomID:  room.ID,
			Content: fmt.Sprintf("msg-%d", i),
		})
		req.NoError(err)
	}

	messages, total, err := env.chat.GetMessages(ctx, alice.User.ID, room.ID, 1, 3)
	req.NoError(err)
	req.EqualValues(5, total)
	req.Len(messages, 3)
	req.Equal("msg-4", messages[0].Content, "newest first")

	_, _, err = env.chat.GetMessages(ctx, carol.User.ID, room.ID, 1, 3)
	req.ErrorIs(err, ErrNotMember)
}

func TestUpdateStatus_Validates_And_Persists(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	aliceConn := env.connect(t, alice)

	req.NoError(env.chat.UpdateStatus(ctx, aliceConn, domain.StatusAway))
	user, err := env.userRepo.GetByID(ctx, alice.User.ID)
	req.NoError(err)
	req.Equal(domain.StatusAway, user.Status)

	req.ErrorIs(env.chat.UpdateStatus(ctx, aliceConn, domain.UserStatus("ghost")), ErrBadStatus)
}
