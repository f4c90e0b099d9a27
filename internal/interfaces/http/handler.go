package http

import (
	"fmt"
	"net/http"
	"time"

	"chatmimic_connect/internal/entities"
	"chatmimic_connect/internal/infrastructure"
	"chatmimic_connect/internal/repository"
	"chatmimic_connect/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

type Handler struct {
	dashboardUsecase *usecases.DashboardUsecase
	dispatcher       *usecases.ChatDispatcher
	waManager        *infrastructure.WhatsAppManager
	usageRepo        *repository.UsageRepository
	userRepo         *repository.UserRepository

	webhookVerifyToken string
}

func NewHandler(dashboard *usecases.DashboardUsecase, dispatcher *usecases.ChatDispatcher, waManager *infrastructure.WhatsAppManager, usageRepo *repository.UsageRepository, userRepo *repository.UserRepository, webhookVerifyToken string) *Handler {
	return &Handler{
		dashboardUsecase:   dashboard,
		dispatcher:         dispatcher,
		waManager:          waManager,
		usageRepo:          usageRepo,
		userRepo:           userRepo,
		webhookVerifyToken: webhookVerifyToken,
	}
}

type RouteDeps struct {
	Auth         *usecases.AuthUsecase
	Dashboard    *usecases.DashboardUsecase
	Dispatcher   *usecases.ChatDispatcher
	WAManager    *infrastructure.WhatsAppManager
	AlertManager *infrastructure.AlertBotManager
	RateLimiter  *infrastructure.MessageRateLimiter
	UserRepo     *repository.UserRepository
	UsageRepo    *repository.UsageRepository
	MessageRepo  *repository.MessageRepository
	ContactRepo  *repository.ContactRepository
	ConfigRepo   *repository.ConfigRepository
	Middleware   *Middleware

	WebhookVerifyToken string
}

func SetupRoutes(r *gin.Engine, deps RouteDeps) {
	h := NewHandler(deps.Dashboard, deps.Dispatcher, deps.WAManager, deps.UsageRepo, deps.UserRepo, deps.WebhookVerifyToken)
	configHandler := NewConfigHandler(deps.ConfigRepo)
	contactHandler := NewContactHandler(deps.Dashboard, deps.ContactRepo, deps.MessageRepo, deps.WAManager, deps.RateLimiter, deps.UsageRepo, deps.UserRepo)
	adminHandler := NewAdminHandler(deps.UserRepo, deps.UsageRepo, deps.WAManager)
	alertHandler := NewAlertHandler(deps.AlertManager, deps.UserRepo)

	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20)) // 10MB max request size
	r.Use(deps.Middleware.CORSMiddleware())

	// Public Routes - WhatsApp Business Cloud webhook per tenant
	r.GET("/webhook/whatsapp/:id", h.VerifyCloudWebhook)
	r.POST("/webhook/whatsapp/:id", h.HandleCloudWebhook)

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := deps.Auth.Login(loginReq.Username, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/register", func(c *gin.Context) {
			var regReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&regReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			// Validate inputs
			if !ValidSlug(regReq.Username) || len(regReq.Password) < 6 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
				return
			}
			if err := deps.Auth.Register(regReq.Username, regReq.Password); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "registered"})
		})
	}

	// Protected Dashboard Routes
	api := r.Group("/api")
	api.Use(deps.Middleware.AuthRequired())
	api.Use(deps.Middleware.RateLimitPerUser(5, 10))
	{
		api.GET("/dashboard/stats", h.GetDashboardStats)
		api.GET("/dashboard/quota", h.GetQuota)
		api.GET("/dashboard/usage", h.GetUsageHistory)

		// Lifecycle rules, sheet configs, settings
		configHandler.RegisterRoutes(api)

		// Conversations and contacts
		contactHandler.RegisterRoutes(api)

		// WhatsApp Management Routes
		api.GET("/whatsapp/qr", h.GetUserQRCode)
		api.GET("/whatsapp/status", h.GetUserWhatsAppStatus)
		api.POST("/whatsapp/connect", h.ConnectUserWhatsApp)
		api.POST("/whatsapp/logout", h.LogoutUserWhatsApp)

		// Telegram lead-alert bot routes (per-user bots)
		alertHandler.RegisterRoutes(api)
	}

	// Admin-only Routes
	admin := r.Group("/api/admin")
	admin.Use(deps.Middleware.AuthRequired())
	admin.Use(deps.Middleware.AdminRequired())
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.GET("/users", adminHandler.GetAllUsers)
		admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
		admin.PUT("/users/:id/whatsapp", adminHandler.UpdateWAEnabled)
		admin.PUT("/users/:id/limits", adminHandler.UpdateUserLimits)
		admin.POST("/users/:id/disconnect-wa", adminHandler.DisconnectUserWA)
	}
}

// ========================================
// Dashboard Handlers
// ========================================

func (h *Handler) GetDashboardStats(c *gin.Context) {
	_, schema := getUserIDAndSchema(c)
	if schema == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No tenant schema"})
		return
	}

	stats, err := h.dashboardUsecase.GetStats(schema)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetQuota(c *gin.Context) {
	userID, _ := getUserIDAndSchema(c)
	user, err := h.userRepo.GetByID(userID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	status, err := h.usageRepo.GetQuotaStatus(userID, user.DailyLimit, user.MonthlyLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quota"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) GetUsageHistory(c *gin.Context) {
	userID, _ := getUserIDAndSchema(c)
	history, err := h.usageRepo.GetUsageHistory(userID, 30)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch usage"})
		return
	}
	c.JSON(http.StatusOK, history)
}

// ========================================
// Per-User WhatsApp Handlers
// ========================================

// ConnectUserWhatsApp creates and connects WhatsApp client for the user
func (h *Handler) ConnectUserWhatsApp(c *gin.Context) {
	userID, schema := getUserIDAndSchema(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	user, err := h.userRepo.GetByID(userID)
	if err != nil || user == nil || !user.WAEnabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "WhatsApp not enabled for this account"})
		return
	}

	client, err := h.waManager.ConnectClient(userID, schema)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Return initial status
	phone, name := client.GetUserInfo()
	c.JSON(http.StatusOK, gin.H{
		"status":    "connecting",
		"connected": client.IsLoggedIn(),
		"phone":     phone,
		"name":      name,
	})
}

// GetUserQRCode returns QR code PNG for user's WhatsApp
func (h *Handler) GetUserQRCode(c *gin.Context) {
	userID, schema := getUserIDAndSchema(c)
	if userID == 0 {
		c.String(http.StatusUnauthorized, "Invalid user")
		return
	}

	// Get or create client
	client, err := h.waManager.GetOrCreateClient(userID, schema)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to create client: "+err.Error())
		return
	}

	// Connect if not already
	if client.Client.Store.ID == nil && !client.Client.IsConnected() {
		if err := client.Connect(); err != nil {
			c.String(http.StatusInternalServerError, "Failed to connect: "+err.Error())
			return
		}
	}

	qrCodeString := client.GetQR()
	if qrCodeString == "" {
		if client.IsLoggedIn() {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	// Generate PNG
	png, err := qrcode.Encode(qrCodeString, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// GetUserWhatsAppStatus returns WhatsApp connection status for user
func (h *Handler) GetUserWhatsAppStatus(c *gin.Context) {
	userID, schema := getUserIDAndSchema(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	client := h.waManager.GetClient(userID)
	if client == nil {
		// Try to get or create (but don't connect)
		client, _ = h.waManager.GetOrCreateClient(userID, schema)
	}

	if client == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "initialized": false})
		return
	}

	phone, name := client.GetUserInfo()
	c.JSON(http.StatusOK, gin.H{
		"connected":   client.IsLoggedIn(),
		"initialized": true,
		"phone":       phone,
		"name":        name,
		"hasQR":       client.GetQR() != "",
	})
}

// LogoutUserWhatsApp logs out user's WhatsApp session
func (h *Handler) LogoutUserWhatsApp(c *gin.Context) {
	userID, _ := getUserIDAndSchema(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	// Attempt logout - errors are logged but not returned to user
	if err := h.waManager.LogoutClient(userID); err != nil {
		fmt.Printf("WhatsApp logout warning for user %d: %v\n", userID, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// ========================================
// WhatsApp Business Cloud Webhook
// ========================================

// VerifyCloudWebhook answers Meta's webhook verification challenge
func (h *Handler) VerifyCloudWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.webhookVerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "Verification failed")
}

// cloudWebhookPayload is the subset of the Cloud API notification we consume
type cloudWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// HandleCloudWebhook ingests inbound Cloud API messages for one tenant and
// feeds them into the same per-chat pipeline as paired-device messages.
func (h *Handler) HandleCloudWebhook(c *gin.Context) {
	tenant, err := h.resolveWebhookTenant(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown tenant"})
		return
	}

	var payload cloudWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	received := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text.Body == "" {
					continue
				}
				msg := entities.Message{
					ID:        m.ID,
					ChatPhone: m.From,
					Content:   SanitizeString(m.Text.Body),
					Sender:    entities.SenderUser,
					Timestamp: parseCloudTimestamp(m.Timestamp),
				}
				h.dispatcher.Dispatch(tenant.SchemaName, msg)
				received++
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "received", "messages": received})
}

func (h *Handler) resolveWebhookTenant(idParam string) (*entities.User, error) {
	var userID int
	if _, err := fmt.Sscanf(idParam, "%d", &userID); err != nil {
		return nil, err
	}
	user, err := h.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive || user.SchemaName == "" {
		return nil, fmt.Errorf("tenant %d not available", userID)
	}
	return user, nil
}

// parseCloudTimestamp converts the Cloud API unix-seconds string; falls back
// to now on garbage.
func parseCloudTimestamp(s string) time.Time {
	var unix int64
	if _, err := fmt.Sscanf(s, "%d", &unix); err != nil || unix <= 0 {
		return time.Now()
	}
	return time.Unix(unix, 0)
}
