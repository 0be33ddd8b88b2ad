package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/repository"
	"github.com/nebulo-im/nebulo/internal/service"
	"github.com/nebulo-im/nebulo/pkg/log"
	"github.com/nebulo-im/nebulo/pkg/middleware"
	"github.com/nebulo-im/nebulo/pkg/response"
)

// Handler handles HTTP requests.
type Handler struct {
	userService    service.UserService
	chatService    service.ChatService
	walletService  service.WalletService
	miniAppService service.MiniAppService
	wsHandler      *WSHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	userService service.UserService,
	chatService service.ChatService,
	walletService service.WalletService,
	miniAppService service.MiniAppService,
	wsHandler *WSHandler,
	authMiddleware *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		userService:    userService,
		chatService:    chatService,
		walletService:  walletService,
		miniAppService: miniAppService,
		wsHandler:      wsHandler,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.wsHandler.Serve)

	api := r.Group("/api/v1")
	{
		// Public routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.POST("/refresh", h.RefreshToken)
			auth.POST("/logout", h.authMiddleware.RequireAuth(), h.Logout)
		}

		// Protected routes
		users := api.Group("/users")
		users.Use(h.authMiddleware.RequireAuth())
		{
			users.GET("/me", h.GetMe)
			users.GET("/online", h.OnlineUsers)
		}

		chat := api.Group("/chat")
		chat.Use(h.authMiddleware.RequireAuth())
		{
			chat.GET("/rooms", h.GetRooms)
			chat.POST("/rooms", h.CreateGroupRoom)
			chat.POST("/rooms/direct", h.CreateDirectRoom)
			chat.DELETE("/rooms/:roomId", h.LeaveRoom)
			chat.GET("/messages/:roomId", h.GetMessages)
		}

		wallet := api.Group("/wallet")
		wallet.Use(h.authMiddleware.RequireAuth())
		{
			wallet.GET("/balance", h.Balances)
			wallet.POST("/send", h.Send)
			wallet.GET("/transactions", h.Transactions)
			wallet.GET("/transactions/:id", h.GetTransaction)
		}

		miniapps := api.Group("/miniapps")
		miniapps.Use(h.authMiddleware.RequireAuth())
		{
			miniapps.GET("", h.ListMiniApps)
			miniapps.GET("/installed", h.ListInstalledMiniApps)
			miniapps.POST("/:id/install", h.InstallMiniApp)
			miniapps.DELETE("/:id/install", h.UninstallMiniApp)
			miniapps.POST("/:id/launch", h.LaunchMiniApp)
		}
	}
}

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.userService.Register(ctx, &req)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			response.Conflict(c, "email already exists")
			return
		}
		if errors.Is(err, repository.ErrUsernameExists) {
			response.Conflict(c, "username already exists")
			return
		}
		l.Error().Err(err).Msg("register failed")
		response.InternalError(c, "failed to register user")
		return
	}

	response.Created(c, result)
}

// Login handles user login by username or email.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.userService.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid credentials")
			return
		}
		l.Error().Err(err).Msg("login failed")
		response.InternalError(c, "failed to login")
		return
	}

	response.Success(c, result)
}

// RefreshToken handles token refresh.
func (h *Handler) RefreshToken(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid refresh token request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.userService.RefreshToken(ctx, &req)
	if err != nil {
		l.Warn().Err(err).Msg("refresh token failed")
		response.Unauthorized(c, "invalid or expired refresh token")
		return
	}

	response.Success(c, result)
}

// Logout handles user logout.
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	if err := h.userService.Logout(ctx, userID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("logout failed")
		response.InternalError(c, "failed to logout")
		return
	}

	response.Success(c, gin.H{"message": "logged out successfully"})
}

// GetMe returns the caller's profile.
func (h *Handler) GetMe(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("get profile failed")
		response.InternalError(c, "failed to get profile")
		return
	}

	response.Success(c, user)
}

// OnlineUsers returns users currently online.
func (h *Handler) OnlineUsers(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.userService.OnlineUsers(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("list online users failed")
		response.InternalError(c, "failed to list online users")
		return
	}

	response.Success(c, users)
}

// GetRooms returns the caller's rooms.
func (h *Handler) GetRooms(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	rooms, err := h.chatService.GetRooms(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("list rooms failed")
		response.InternalError(c, "failed to list rooms")
		return
	}

	response.Success(c, rooms)
}

// CreateDirectRoom opens a 1:1 room with another user.
func (h *Handler) CreateDirectRoom(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	var req domain.CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.chatService.CreateDirectRoom(ctx, userID, req.User)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFound(c, "user not found")
		case errors.Is(err, service.ErrSelfRoom):
			response.BadRequest(c, "cannot open a direct room with yourself")
		default:
			log.Ctx(ctx).Error().Err(err).Msg("create direct room failed")
			response.InternalError(c, "failed to create room")
		}
		return
	}

	response.Created(c, room)
}

// CreateGroupRoom creates a group chat.
func (h *Handler) CreateGroupRoom(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	var req domain.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.chatService.CreateGroupRoom(ctx, userID, &req)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "member not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("create group room failed")
		response.InternalError(c, "failed to create room")
		return
	}

	response.Created(c, room)
}

// LeaveRoom revokes the caller's membership in a room. Live
// connections stop receiving the room's deliveries immediately.
func (h *Handler) LeaveRoom(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	roomID := c.Param("roomId")

	if err := h.chatService.RevokeMembership(ctx, userID, roomID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotMember):
			response.Forbidden(c, "not a member of this room")
		case errors.Is(err, service.ErrRoomNotFound):
			response.NotFound(c, "room not found")
		default:
			log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, roomID).Msg("leave room failed")
			response.InternalError(c, "failed to leave room")
		}
		return
	}

	response.Success(c, gin.H{"room_id": roomID})
}

// GetMessages returns a page of room history.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	roomID := c.Param("roomId")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, total, err := h.chatService.GetMessages(ctx, userID, roomID, page, limit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			response.NotFound(c, "room not found")
		case errors.Is(err, service.ErrNotMember):
			response.Forbidden(c, "not a member of this room")
		default:
			log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, roomID).Msg("get messages failed")
			response.InternalError(c, "failed to get messages")
		}
		return
	}

	response.Success(c, gin.H{
		"messages": messages,
		"total":    total,
		"page":     page,
	})
}

// Balances returns the caller's wallet balances.
func (h *Handler) Balances(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	balances, err := h.walletService.Balances(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("get balances failed")
		response.InternalError(c, "failed to get balances")
		return
	}

	response.Success(c, balances)
}

// Send transfers funds to another user.
func (h *Handler) Send(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	var req domain.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.walletService.Send(ctx, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			response.BadRequest(c, "amount must be positive")
		case errors.Is(err, service.ErrWrongPassword):
			response.Unauthorized(c, "wrong password")
		case errors.Is(err, service.ErrRecipientNotFound):
			response.NotFound(c, "recipient not found")
		case errors.Is(err, service.ErrSelfTransfer):
			response.BadRequest(c, "cannot transfer to yourself")
		case errors.Is(err, service.ErrWalletNotFound):
			response.NotFound(c, "wallet not found")
		case errors.Is(err, service.ErrInsufficientFunds):
			response.Conflict(c, "insufficient funds")
		default:
			log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("transfer failed")
			response.InternalError(c, "failed to send")
		}
		return
	}

	response.Success(c, result)
}

// Transactions returns a page of the caller's transaction history.
func (h *Handler) Transactions(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	transactions, total, err := h.walletService.Transactions(ctx, userID, page, limit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("list transactions failed")
		response.InternalError(c, "failed to list transactions")
		return
	}

	response.Success(c, gin.H{
		"transactions": transactions,
		"total":        total,
		"page":         page,
	})
}

// GetTransaction returns one transaction the caller participated in.
func (h *Handler) GetTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	txID := c.Param("id")

	tx, err := h.walletService.GetTransaction(ctx, userID, txID)
	if err != nil {
		if errors.Is(err, service.ErrTxNotFound) {
			response.NotFound(c, "transaction not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldTransactionID, txID).Msg("get transaction failed")
		response.InternalError(c, "failed to get transaction")
		return
	}

	response.Success(c, tx)
}

// ListMiniApps returns the published catalog.
func (h *Handler) ListMiniApps(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	apps, err := h.miniAppService.List(ctx, userID, c.Query("category"), c.Query("search"))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("list mini apps failed")
		response.InternalError(c, "failed to list mini apps")
		return
	}

	response.Success(c, apps)
}

// ListInstalledMiniApps returns the caller's installed apps.
func (h *Handler) ListInstalledMiniApps(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	apps, err := h.miniAppService.ListInstalled(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("list installed mini apps failed")
		response.InternalError(c, "failed to list installed mini apps")
		return
	}

	response.Success(c, apps)
}

// InstallMiniApp installs a catalog app for the caller.
func (h *Handler) InstallMiniApp(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	appID := c.Param("id")

	if err := h.miniAppService.Install(ctx, userID, appID); err != nil {
		if errors.Is(err, service.ErrMiniAppNotFound) {
			response.NotFound(c, "mini app not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("install mini app failed")
		response.InternalError(c, "failed to install mini app")
		return
	}

	response.Success(c, gin.H{"message": "installed"})
}

// UninstallMiniApp removes an app from the caller's collection.
func (h *Handler) UninstallMiniApp(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	appID := c.Param("id")

	if err := h.miniAppService.Uninstall(ctx, userID, appID); err != nil {
		if errors.Is(err, service.ErrMiniAppNotFound) {
			response.NotFound(c, "mini app not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("uninstall mini app failed")
		response.InternalError(c, "failed to uninstall mini app")
		return
	}

	response.Success(c, gin.H{"message": "uninstalled"})
}

// LaunchMiniApp records a use of an installed app.
func (h *Handler) LaunchMiniApp(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	appID := c.Param("id")

	app, err := h.miniAppService.Launch(ctx, userID, appID)
	if err != nil {
		if errors.Is(err, service.ErrMiniAppNotFound) {
			response.NotFound(c, "mini app not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("launch mini app failed")
		response.InternalError(c, "failed to launch mini app")
		return
	}

	response.Success(c, app)
}
