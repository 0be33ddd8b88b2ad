package handler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/hub"
	"github.com/nebulo-im/nebulo/internal/service"
)

// stubChatService implements only the calls the authentication path
// makes; everything else panics through the embedded nil interface.
type stubChatService struct {
	service.ChatService
	h        *hub.Hub
	users    map[string]*domain.User
	connects int
}

func (s *stubChatService) Authenticate(_ context.Context, token string) (*domain.User, error) {
	user, ok := s.users[token]
	if !ok {
		return nil, service.ErrInvalidToken
	}
	return user, nil
}

func (s *stubChatService) Connect(_ context.Context, c *hub.Client) {
	s.h.Register(c)
	s.connects++
}

func TestAuthenticate_Binds_Connection_To_First_Identity(t *testing.T) {
	req := require.New(t)

	h := hub.NewHub(zerolog.Nop())
	stub := &stubChatService{
		h: h,
		users: map[string]*domain.User{
			"alice-token": {ID: "alice-id", Username: "alice"},
			"bob-token":   {ID: "bob-id", Username: "bob"},
		},
	}
	w := NewWSHandler(h, stub, nil, zerolog.Nop())

	c := hub.NewClient(h, nil, zerolog.Nop())
	w.handleMessage(c, []byte(`{"type":"authenticate","token":"alice-token"}`))
	req.Equal("alice-id", c.UserID)
	req.Equal(1, stub.connects)
	req.True(h.IsOnline("alice-id"))

	// Another user's token must not rebind a live connection; the hub
	// tracks presence by the first identity.
	w.handleMessage(c, []byte(`{"type":"authenticate","token":"bob-token"}`))
	req.Equal("alice-id", c.UserID)
	req.Equal("alice", c.Username)
	req.Equal(1, stub.connects)
	req.False(h.IsOnline("bob-id"))
	req.True(h.IsOnline("alice-id"))

	// Re-authenticating as the same user refreshes without a second
	// hub registration.
	w.handleMessage(c, []byte(`{"type":"authenticate","token":"alice-token"}`))
	req.Equal(1, stub.connects)
}
