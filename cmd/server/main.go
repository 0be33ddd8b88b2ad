package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nebulo-im/nebulo/internal/cache"
	"github.com/nebulo-im/nebulo/internal/config"
	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/handler"
	"github.com/nebulo-im/nebulo/internal/hub"
	"github.com/nebulo-im/nebulo/internal/repository"
	"github.com/nebulo-im/nebulo/internal/service"
	"github.com/nebulo-im/nebulo/internal/stream"
	"github.com/nebulo-im/nebulo/pkg/database"
	"github.com/nebulo-im/nebulo/pkg/jwt"
	"github.com/nebulo-im/nebulo/pkg/log"
	"github.com/nebulo-im/nebulo/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log.Init(log.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "nebulo",
	})
	logger := log.L()

	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.RoomModel{},
		&domain.MembershipModel{},
		&domain.MessageModel{},
		&domain.WalletModel{},
		&domain.TransactionModel{},
		&domain.MiniAppModel{},
		&domain.InstallationModel{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	jwtManager, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessDuration, cfg.JWT.RefreshDuration, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}

	var userCache cache.UserCache = cache.NewNoopUserCache()
	if cfg.Redis.Enabled {
		userCache, err = cache.NewRedisUserCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
	}
	defer userCache.Close()

	var producer stream.Producer = stream.NewNoopProducer()
	if cfg.Kafka.Enabled {
		producer, err = stream.NewConfluentProducer(
			cfg.Kafka.BootstrapServers,
			cfg.Kafka.MessagesTopic,
			cfg.Kafka.TransactionsTopic,
			logger,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer")
		}
	}
	defer producer.Close()

	feeRate, err := decimal.NewFromString(cfg.Wallet.FeeRate)
	if err != nil {
		logger.Fatal().Err(err).Str("fee_rate", cfg.Wallet.FeeRate).Msg("invalid fee rate")
	}

	// Repositories
	userRepo := repository.NewGormUserRepository(db)
	roomRepo := repository.NewGormRoomRepository(db)
	msgRepo := repository.NewGormMessageRepository(db)
	walletRepo := repository.NewGormWalletRepository(db)
	miniAppRepo := repository.NewGormMiniAppRepository(db)

	// Gateway hub
	h := hub.NewHub(logger)

	// Services
	userService := service.NewUserService(userRepo, walletRepo, jwtManager, userCache, cfg.Cache.TTL)
	chatService := service.NewChatService(userRepo, roomRepo, msgRepo, h, jwtManager, producer)
	walletService := service.NewWalletService(walletRepo, userRepo, producer, feeRate)
	miniAppService := service.NewMiniAppService(miniAppRepo)

	// Handlers
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)
	wsHandler := handler.NewWSHandler(h, chatService, userService, logger)
	httpHandler := handler.NewHandler(userService, chatService, walletService, miniAppService, wsHandler, authMiddleware)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	httpHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		h.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("driver", cfg.Database.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
