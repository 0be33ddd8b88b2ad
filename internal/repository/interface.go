package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetByIdentifier resolves a username, email, or id to a user.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	UpdateStatus(ctx context.Context, userID string, status domain.UserStatus, lastSeen time.Time) error
	ListByStatus(ctx context.Context, status domain.UserStatus) ([]*domain.User, error)
}

// RoomRepository persists rooms and memberships.
type RoomRepository interface {
	// Create stores the room and its initial memberships in one transaction.
	Create(ctx context.Context, room *domain.Room, memberships []*domain.Membership) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	// ListForUser returns rooms the user holds an active membership in,
	// most recently active first, with the caller's membership attached.
	ListForUser(ctx context.Context, userID string) ([]*domain.Room, map[string]*domain.Membership, error)
	// GetActiveMembership returns the single active membership row for
	// (user, room), or ErrMembershipNotFound.
	GetActiveMembership(ctx context.Context, userID, roomID string) (*domain.Membership, error)
	ListActiveMembers(ctx context.Context, roomID string) ([]*domain.Membership, error)
	TouchActivity(ctx context.Context, roomID string, at time.Time) error
	// IncrementUnread bumps the unread counter of every active member
	// except the sender.
	IncrementUnread(ctx context.Context, roomID, exceptUserID string) error
	ResetUnread(ctx context.Context, userID, roomID, lastReadMessageID string) error
	// DeactivateMembership soft-deletes a membership (leave).
	DeactivateMembership(ctx context.Context, userID, roomID string) error
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// Recent returns up to limit non-deleted messages for a room, newest
	// first, with sender details attached.
	Recent(ctx context.Context, roomID string, limit int) ([]*domain.Message, error)
	// History returns a page of non-deleted messages, newest first, plus
	// the total count.
	History(ctx context.Context, roomID string, page, limit int) ([]*domain.Message, int64, error)
	Edit(ctx context.Context, id, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

// WalletRepository persists wallets and transactions.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID, asset, address string) (*domain.Wallet, error)
	GetActive(ctx context.Context, userID, asset string) (*domain.Wallet, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Wallet, error)
	// Transfer debits total from the sender wallet and credits amount to
	// the receiver wallet as one atomic unit. The debit is conditional on
	// available_balance >= total; ErrInsufficientFunds is returned and
	// nothing is applied when the condition fails.
	Transfer(ctx context.Context, fromWalletID, toWalletID string, total, amount decimal.Decimal) error
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	// SetTransactionStatus transitions a pending transaction. Writes to a
	// transaction already confirmed or failed return ErrTerminalTransaction.
	SetTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, completedAt *time.Time) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID string, page, limit int) ([]*domain.Transaction, int64, error)
}

// MiniAppRepository persists the mini-app catalog and installations.
type MiniAppRepository interface {
	List(ctx context.Context, category, search string) ([]*domain.MiniApp, error)
	GetByID(ctx context.Context, id string) (*domain.MiniApp, error)
	// Install creates or reactivates the installation row and bumps the
	// catalog install counter.
	Install(ctx context.Context, userID, appID string) error
	Uninstall(ctx context.Context, userID, appID string) error
	// MarkUsed records that the user opened an installed app.
	MarkUsed(ctx context.Context, userID, appID string, at time.Time) error
	Installations(ctx context.Context, userID string) (map[string]*domain.InstallationModel, error)
	ListInstalled(ctx context.Context, userID string) ([]*domain.MiniApp, map[string]*domain.InstallationModel, error)
}
