package service

import (
	"context"

	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/hub"
)

// UserService handles accounts, authentication, and presence state.
type UserService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error)
	Logout(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*domain.UserResponse, error)
	SetStatus(ctx context.Context, userID string, status domain.UserStatus) error
	OnlineUsers(ctx context.Context) ([]domain.UserResponse, error)
}

// ChatService drives the real-time gateway: connection lifecycle, room
// subscriptions, message fan-out, and presence broadcasts.
type ChatService interface {
	// Authenticate resolves a gateway token to its user.
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	// Connect registers an authenticated connection and flips the user
	// online if it is their first.
	Connect(ctx context.Context, c *hub.Client)
	// Disconnect unregisters a connection and flips the user offline if
	// it was their last. Room memberships are untouched.
	Disconnect(ctx context.Context, c *hub.Client)

	// JoinRoom subscribes the connection and returns recent history,
	// oldest first.
	JoinRoom(ctx context.Context, c *hub.Client, roomID string) ([]*domain.Message, error)
	// LeaveRoom unsubscribes the connection from the room's delivery
	// group. The durable membership is untouched.
	LeaveRoom(ctx context.Context, c *hub.Client, roomID string) error
	// RevokeMembership ends the user's membership in a room and drops
	// all of their live connections from its delivery group.
	RevokeMembership(ctx context.Context, userID, roomID string) error
	SendMessage(ctx context.Context, c *hub.Client, ev *domain.SendMessageEvent) (*domain.Message, error)
	EditMessage(ctx context.Context, c *hub.Client, messageID, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, c *hub.Client, messageID string) error
	Typing(ctx context.Context, c *hub.Client, roomID string, typing bool)
	UpdateStatus(ctx context.Context, c *hub.Client, status domain.UserStatus) error

	GetRooms(ctx context.Context, userID string) ([]*domain.RoomResponse, error)
	GetMessages(ctx context.Context, userID, roomID string, page, limit int) ([]*domain.Message, int64, error)
	CreateDirectRoom(ctx context.Context, userID, otherIdentifier string) (*domain.RoomResponse, error)
	CreateGroupRoom(ctx context.Context, userID string, req *domain.CreateGroupRequest) (*domain.RoomResponse, error)
}

// WalletService handles balances and transfers.
type WalletService interface {
	Balances(ctx context.Context, userID string) ([]*domain.BalanceResponse, error)
	Send(ctx context.Context, userID string, req *domain.SendRequest) (*domain.TransactionResponse, error)
	Transactions(ctx context.Context, userID string, page, limit int) ([]*domain.TransactionResponse, int64, error)
	GetTransaction(ctx context.Context, userID, txID string) (*domain.TransactionResponse, error)
}

// MiniAppService handles the installable catalog.
type MiniAppService interface {
	List(ctx context.Context, userID, category, search string) ([]*domain.MiniAppResponse, error)
	ListInstalled(ctx context.Context, userID string) ([]*domain.MiniAppResponse, error)
	Install(ctx context.Context, userID, appID string) error
	Uninstall(ctx context.Context, userID, appID string) error
	Launch(ctx context.Context, userID, appID string) (*domain.MiniAppResponse, error)
}
