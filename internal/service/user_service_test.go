package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/repository"
)

func TestRegister_Issues_Tokens_And_Seeds_Wallets(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	req.NotEmpty(alice.AccessToken)
	req.NotEmpty(alice.RefreshToken)
	req.Equal("alice", alice.User.Username)
	req.Equal(domain.StatusOffline, alice.User.Status)

	wallets, err := env.walletRepo.ListByUser(ctx, alice.User.ID)
	req.NoError(err)
	req.Len(wallets, len(domain.DefaultAssets))
	for _, w := range wallets {
		req.True(w.AvailableBalance.Equal(decimal.Zero), "seeded wallets start empty")
		req.NotEmpty(w.Address)
	}
}

func TestRegister_Rejects_Duplicates(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "alice")

	_, err := env.users.Register(ctx, &domain.RegisterRequest{
		Username: "alice2",
		Email:    "alice@example.com",
		Password: "password123",
	})
	req.ErrorIs(err, repository.ErrEmailExists)

	_, err = env.users.Register(ctx, &domain.RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "password123",
	})
	req.ErrorIs(err, repository.ErrUsernameExists)
}

func TestLogin_By_Username_And_Email(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "alice")

	byUsername, err := env.users.Login(ctx, &domain.LoginRequest{
		Identifier: "alice",
		Password:   "password123",
	})
	req.NoError(err)
	req.Equal("alice", byUsername.User.Username)

	byEmail, err := env.users.Login(ctx, &domain.LoginRequest{
		Identifier: "alice@example.com",
		Password:   "password123",
	})
	req.NoError(err)
	req.Equal(byUsername.User.ID, byEmail.User.ID)
}

func TestLogin_Rejects_Bad_Credentials(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "alice")

	_, err := env.users.Login(ctx, &domain.LoginRequest{
		Identifier: "alice",
		Password:   "wrong",
	})
	req.ErrorIs(err, ErrInvalidCredentials)

	_, err = env.users.Login(ctx, &domain.LoginRequest{
		Identifier: "nobody",
		Password:   "password123",
	})
	req.ErrorIs(err, ErrInvalidCredentials)
}

func TestRefreshToken_Round_Trip(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")

	refreshed, err := env.users.RefreshToken(ctx, &domain.RefreshTokenRequest{
		RefreshToken: alice.RefreshToken,
	})
	req.NoError(err)
	req.Equal(alice.User.ID, refreshed.User.ID)
	req.NotEmpty(refreshed.AccessToken)

	// An access token is not accepted as a refresh token.
	_, err = env.users.RefreshToken(ctx, &domain.RefreshTokenRequest{
		RefreshToken: alice.AccessToken,
	})
	req.ErrorIs(err, ErrInvalidCredentials)
}

func TestGetUser(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")

	user, err := env.users.GetUser(ctx, alice.User.ID)
	req.NoError(err)
	req.Equal("alice", user.Username)

	_, err = env.users.GetUser(ctx, "no-such-id")
	req.ErrorIs(err, ErrUserNotFound)
}

func TestSetStatus_And_OnlineUsers(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")

	req.NoError(env.users.SetStatus(ctx, alice.User.ID, domain.StatusOnline))
	req.ErrorIs(env.users.SetStatus(ctx, alice.User.ID, domain.UserStatus("ghost")), ErrBadStatus)

	online, err := env.users.OnlineUsers(ctx)
	req.NoError(err)
	req.Len(online, 1)
	req.Equal("alice", online[0].Username)
}
