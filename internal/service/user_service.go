package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nebulo-im/nebulo/internal/audit"
	"github.com/nebulo-im/nebulo/internal/cache"
	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/repository"
	"github.com/nebulo-im/nebulo/pkg/jwt"
	"github.com/nebulo-im/nebulo/pkg/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrBadStatus          = errors.New("unknown presence status")
)

// userServiceImpl implements UserService.
type userServiceImpl struct {
	repo       repository.UserRepository
	walletRepo repository.WalletRepository
	jwtManager *jwt.Manager
	userCache  cache.UserCache
	cacheTTL   time.Duration
}

// NewUserService creates a new user service.
func NewUserService(
	repo repository.UserRepository,
	walletRepo repository.WalletRepository,
	jwtManager *jwt.Manager,
	userCache cache.UserCache,
	cacheTTL time.Duration,
) UserService {
	return &userServiceImpl{
		repo:       repo,
		walletRepo: walletRepo,
		jwtManager: jwtManager,
		userCache:  userCache,
		cacheTTL:   cacheTTL,
	}
}

// Register registers a new user and seeds their default wallets.
func (s *userServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Email:        req.Email,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hashedPassword),
		Status:       domain.StatusOffline,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	// Every account starts with a zero-balance wallet per default asset.
	for _, asset := range domain.DefaultAssets {
		if _, err := s.walletRepo.GetOrCreate(ctx, user.ID, asset, newWalletAddress(asset)); err != nil {
			l.Error().Err(err).
				Str(log.FieldUserID, user.ID).
				Str(log.FieldAsset, asset).
				Msg("failed to seed wallet")
			return nil, err
		}
	}

	accessToken, refreshToken, accessExp, _, err := s.jwtManager.GenerateTokenPair(user.ID, user.Email, user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens after register")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")

	return &domain.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
	}, nil
}

// Login authenticates a user by username or email.
func (s *userServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Identifier, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by identifier")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Identifier, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	accessToken, refreshToken, accessExp, _, err := s.jwtManager.GenerateTokenPair(user.ID, user.Email, user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens after login")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")

	return &domain.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
	}, nil
}

// RefreshToken issues a new token pair from a valid refresh token.
func (s *userServiceImpl) RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	claims, err := s.jwtManager.ValidateToken(req.RefreshToken)
	if err != nil || claims.Type != "refresh" {
		l.Warn().Err(err).Msg("failed to refresh token")
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to get user after token refresh")
		return nil, err
	}

	accessToken, refreshToken, accessExp, _, err := s.jwtManager.GenerateTokenPair(user.ID, user.Email, user.Username)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens after refresh")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRefreshToken, user.ID, "token refreshed")

	return &domain.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
	}, nil
}

// Logout revokes every outstanding token of a user.
func (s *userServiceImpl) Logout(ctx context.Context, userID string) error {
	s.jwtManager.RevokeUser(userID)
	audit.Log(ctx, audit.ActionLogout, userID, "user logged out")
	return nil
}

// GetUser retrieves a user by ID through the cache.
func (s *userServiceImpl) GetUser(ctx context.Context, userID string) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	key := s.userCache.BuildKeyByID(userID)
	if cached, err := s.userCache.Get(ctx, key); err == nil {
		resp := cached.User.ToResponse()
		return &resp, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Msg("user cache read failed")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to get user")
		return nil, err
	}

	if err := s.userCache.Set(ctx, key, &cache.UserCacheResult{User: *user}, s.cacheTTL); err != nil {
		l.Warn().Err(err).Msg("user cache write failed")
	}

	resp := user.ToResponse()
	return &resp, nil
}

// SetStatus persists a user's presence status.
func (s *userServiceImpl) SetStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	if !domain.ValidUserStatus(status) {
		return ErrBadStatus
	}

	if err := s.repo.UpdateStatus(ctx, userID, status, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	// Stale presence in the cache is worse than a re-read.
	if err := s.userCache.Delete(ctx, s.userCache.BuildKeyByID(userID)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("user cache invalidation failed")
	}

	audit.LogWithDetail(ctx, audit.ActionStatusChange, userID, string(status), "status changed")
	return nil
}

// OnlineUsers lists users whose persisted status is online.
func (s *userServiceImpl) OnlineUsers(ctx context.Context) ([]domain.UserResponse, error) {
	users, err := s.repo.ListByStatus(ctx, domain.StatusOnline)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.UserResponse, len(users))
	for i, u := range users {
		responses[i] = u.ToResponse()
	}
	return responses, nil
}

func newWalletAddress(asset string) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(asset), strings.ReplaceAll(uuid.New().String(), "-", ""))
}
