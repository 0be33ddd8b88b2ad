package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nebulo-im/nebulo/internal/cache"
	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/hub"
	"github.com/nebulo-im/nebulo/internal/repository"
	"github.com/nebulo-im/nebulo/internal/stream"
	"github.com/nebulo-im/nebulo/pkg/jwt"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.UserModel{},
		&domain.RoomModel{},
		&domain.MembershipModel{},
		&domain.MessageModel{},
		&domain.WalletModel{},
		&domain.TransactionModel{},
		&domain.MiniAppModel{},
		&domain.InstallationModel{},
	))
	return db
}

type testEnv struct {
	db *gorm.DB

	userRepo   repository.UserRepository
	roomRepo   repository.RoomRepository
	msgRepo    repository.MessageRepository
	walletRepo repository.WalletRepository

	jwtManager *jwt.Manager
	hub        *hub.Hub

	users   UserService
	chat    ChatService
	wallets WalletService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	jwtManager, err := jwt.NewManager("test-secret", time.Hour, 24*time.Hour, "nebulo-test")
	require.NoError(t, err)

	userRepo := repository.NewGormUserRepository(db)
	roomRepo := repository.NewGormRoomRepository(db)
	msgRepo := repository.NewGormMessageRepository(db)
	walletRepo := repository.NewGormWalletRepository(db)

	h := hub.NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	producer := stream.NewNoopProducer()
	feeRate := decimal.RequireFromString("0.001")

	return &testEnv{
		db:         db,
		userRepo:   userRepo,
		roomRepo:   roomRepo,
		msgRepo:    msgRepo,
		walletRepo: walletRepo,
		jwtManager: jwtManager,
		hub:        h,
		users:      NewUserService(userRepo, walletRepo, jwtManager, cache.NewNoopUserCache(), time.Minute),
		chat:       NewChatService(userRepo, roomRepo, msgRepo, h, jwtManager, producer),
		wallets:    NewWalletService(walletRepo, userRepo, producer, feeRate),
	}
}

func (e *testEnv) register(t *testing.T, username string) *domain.AuthResponse {
	t.Helper()

	resp, err := e.users.Register(context.Background(), &domain.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) setBalance(t *testing.T, userID, asset, balance string) {
	t.Helper()

	result := e.db.Model(&domain.WalletModel{}).
		Where("user_id = ? AND asset = ?", userID, asset).
		Update("available_balance", decimal.RequireFromString(balance))
	require.NoError(t, result.Error)
	require.EqualValues(t, 1, result.RowsAffected)
}

func (e *testEnv) balance(t *testing.T, userID, asset string) decimal.Decimal {
	t.Helper()

	wallet, err := e.walletRepo.GetActive(context.Background(), userID, asset)
	require.NoError(t, err)
	return wallet.AvailableBalance
}
