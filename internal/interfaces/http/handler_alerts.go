package http

import (
	"net/http"

	"chatmimic_connect/internal/infrastructure"
	"chatmimic_connect/internal/repository"

	"github.com/gin-gonic/gin"
)

// AlertHandler manages per-tenant Telegram lead-alert bots
type AlertHandler struct {
	alertManager *infrastructure.AlertBotManager
	userRepo     *repository.UserRepository
}

func NewAlertHandler(alertManager *infrastructure.AlertBotManager, userRepo *repository.UserRepository) *AlertHandler {
	return &AlertHandler{
		alertManager: alertManager,
		userRepo:     userRepo,
	}
}

func (h *AlertHandler) RegisterRoutes(api *gin.RouterGroup) {
	alerts := api.Group("/alerts")
	{
		alerts.GET("/status", h.GetStatus)
		alerts.POST("/token", h.SaveToken)
		alerts.POST("/connect", h.Connect)
		alerts.POST("/disconnect", h.Disconnect)
		alerts.POST("/validate", h.ValidateToken)
	}
}

// GetStatus returns the connection status of the user's alert bot
func (h *AlertHandler) GetStatus(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	user, err := h.userRepo.GetByID(userID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}

	connected, botName, bound := h.alertManager.GetStatus(userID)

	c.JSON(http.StatusOK, gin.H{
		"has_token":  user.AlertBotToken != "",
		"connected":  connected,
		"bot_name":   botName,
		"chat_bound": bound,
	})
}

// SaveToken saves the user's alert bot token. An empty token clears it.
func (h *AlertHandler) SaveToken(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Validate token first
	if req.Token != "" {
		botName, err := h.alertManager.ValidateToken(req.Token)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid token: " + err.Error()})
			return
		}

		// Saving a new token resets the chat binding
		if err := h.userRepo.UpdateAlertBotToken(userID, req.Token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "saved",
			"bot_name": botName,
		})
		return
	}

	// Clear token
	h.alertManager.DisconnectBot(userID)
	if err := h.userRepo.UpdateAlertBotToken(userID, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// ValidateToken checks if a token is valid without saving
func (h *AlertHandler) ValidateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	botName, err := h.alertManager.ValidateToken(req.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"bot_name": "@" + botName,
	})
}

// Connect starts the user's alert bot
func (h *AlertHandler) Connect(c *gin.Context) {
	userID, schema := getUserIDAndSchema(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	user, err := h.userRepo.GetByID(userID)
	if err != nil || user == nil || user.AlertBotToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No token configured. Please save your bot token first."})
		return
	}

	instance, err := h.alertManager.ConnectBot(userID, schema, user.AlertBotToken, user.AlertChatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to connect: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "connected",
		"bot_name": "@" + instance.Bot.Self.UserName,
		"hint":     "Send /start to the bot to bind the alert chat",
	})
}

// Disconnect stops the user's alert bot
func (h *AlertHandler) Disconnect(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	h.alertManager.DisconnectBot(userID)

	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}
