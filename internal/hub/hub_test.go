package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, userID string) *Client {
	c := NewClient(h, nil, zerolog.Nop())
	c.UserID = userID
	c.Username = "user-" + userID
	return c
}

func drain(t *testing.T, c *Client, n int) []string {
	t.Helper()
	var got []string
	for i := 0; i < n; i++ {
		select {
		case payload := <-c.send:
			got = append(got, string(payload))
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	return got
}

func TestRegister_Tracks_First_And_Last_Connection(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	c1 := newTestClient(h, "alice")
	c2 := newTestClient(h, "alice")

	req.True(h.Register(c1), "first connection should report first")
	req.False(h.Register(c2), "second connection should not report first")
	req.True(h.IsOnline("alice"))
	req.Equal(2, h.ConnectionCount("alice"))

	req.False(h.Unregister(c1), "one connection remains")
	req.True(h.IsOnline("alice"))
	req.True(h.Unregister(c2), "last connection should report last")
	req.False(h.IsOnline("alice"))
}

func TestUnregister_Unknown_Client_Is_Harmless(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	c := newTestClient(h, "alice")
	req.False(h.Unregister(c))
}

func TestJoinRoom_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	c := newTestClient(h, "alice")
	h.Register(c)

	req.False(h.JoinRoom(c, "room-1"))
	req.True(h.JoinRoom(c, "room-1"), "second join should report already joined")
	req.Equal([]string{"alice"}, h.RoomSubscribers("room-1"))
}

func TestBroadcastToRoom_All_Subscribers_See_Same_Order(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c1 := newTestClient(h, "alice")
	c2 := newTestClient(h, "bob")
	h.Register(c1)
	h.Register(c2)
	h.JoinRoom(c1, "room-1")
	h.JoinRoom(c2, "room-1")

	const n = 100
	for i := 0; i < n; i++ {
		h.BroadcastToRoom("room-1", map[string]int{"seq": i})
	}

	got1 := drain(t, c1, n)
	got2 := drain(t, c2, n)
	req.Equal(got1, got2, "subscribers must observe identical order")

	for i, payload := range got1 {
		var ev map[string]int
		req.NoError(json.Unmarshal([]byte(payload), &ev))
		req.Equal(i, ev["seq"])
	}
}

func TestBroadcastToRoomExcept_Skips_Originator(t *testing.T) {
	h := NewHub(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c1 := newTestClient(h, "alice")
	c2 := newTestClient(h, "bob")
	h.Register(c1)
	h.Register(c2)
	h.JoinRoom(c1, "room-1")
	h.JoinRoom(c2, "room-1")

	h.BroadcastToRoomExcept("room-1", c1.ID, map[string]string{"type": "typing_start"})

	drain(t, c2, 1)
	select {
	case payload := <-c1.send:
		t.Fatalf("originator should not receive its own event, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendToUsers_Reaches_Every_Connection(t *testing.T) {
	h := NewHub(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a1 := newTestClient(h, "alice")
	a2 := newTestClient(h, "alice")
	b := newTestClient(h, "bob")
	stranger := newTestClient(h, "carol")
	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	h.Register(stranger)

	h.SendToUsers([]string{"alice", "bob"}, map[string]string{"type": "user_status_update"})

	drain(t, a1, 1)
	drain(t, a2, 1)
	drain(t, b, 1)

	select {
	case payload := <-stranger.send:
		t.Fatalf("carol should not receive the event, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnregister_Removes_Room_Subscriptions(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	c := newTestClient(h, "alice")
	h.Register(c)
	h.JoinRoom(c, "room-1")
	h.JoinRoom(c, "room-2")

	h.Unregister(c)

	req.Empty(h.RoomSubscribers("room-1"))
	req.Empty(h.RoomSubscribers("room-2"))
}

func TestUnsubscribeUser_Drops_Every_Connection(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	a1 := newTestClient(h, "alice")
	a2 := newTestClient(h, "alice")
	b := newTestClient(h, "bob")
	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	h.JoinRoom(a1, "room-1")
	h.JoinRoom(a2, "room-1")
	h.JoinRoom(b, "room-1")

	h.UnsubscribeUser("alice", "room-1")

	req.Equal([]string{"bob"}, h.RoomSubscribers("room-1"))
	req.True(h.IsOnline("alice"), "connections stay registered")
	req.False(h.JoinRoom(a1, "room-1"), "a fresh join is not a re-join")
}

func TestLeaveRoom_Keeps_Other_Subscriptions(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	c := newTestClient(h, "alice")
	h.Register(c)
	h.JoinRoom(c, "room-1")
	h.JoinRoom(c, "room-2")

	h.LeaveRoom(c, "room-1")

	req.Empty(h.RoomSubscribers("room-1"))
	req.Equal([]string{"alice"}, h.RoomSubscribers("room-2"))
}

func TestOnlineUserIDs(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())

	for i := 0; i < 3; i++ {
		c := newTestClient(h, fmt.Sprintf("user-%d", i))
		h.Register(c)
	}

	req.ElementsMatch([]string{"user-0", "user-1", "user-2"}, h.OnlineUserIDs())
}
