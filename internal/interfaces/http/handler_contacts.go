package http

import (
	"net/http"
	"strconv"
	"time"

	"chatmimic_connect/internal/entities"
	"chatmimic_connect/internal/infrastructure"
	"chatmimic_connect/internal/repository"
	"chatmimic_connect/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContactHandler serves the dashboard's conversation and contact views
type ContactHandler struct {
	dashboard   *usecases.DashboardUsecase
	contactRepo *repository.ContactRepository
	messageRepo *repository.MessageRepository
	waManager   *infrastructure.WhatsAppManager
	rateLimiter *infrastructure.MessageRateLimiter
	usageRepo   *repository.UsageRepository
	userRepo    *repository.UserRepository
}

func NewContactHandler(dashboard *usecases.DashboardUsecase, contactRepo *repository.ContactRepository, messageRepo *repository.MessageRepository, waManager *infrastructure.WhatsAppManager, rateLimiter *infrastructure.MessageRateLimiter, usageRepo *repository.UsageRepository, userRepo *repository.UserRepository) *ContactHandler {
	return &ContactHandler{
		dashboard:   dashboard,
		contactRepo: contactRepo,
		messageRepo: messageRepo,
		waManager:   waManager,
		rateLimiter: rateLimiter,
		usageRepo:   usageRepo,
		userRepo:    userRepo,
	}
}

func (h *ContactHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:phone", h.GetConversation)
	api.POST("/conversations/:phone/send", h.SendMessage)

	api.PUT("/contacts/:phone/stage", h.SetManualStage)
	api.DELETE("/contacts/:phone/stage-lock", h.ClearManualOverride)
	api.POST("/contacts/:phone/sync-sheets", h.SyncToSheets)
}

// ListConversations returns contacts with message counts, optionally filtered
// by lifecycle stage (?stage=Hot+Lead)
func (h *ContactHandler) ListConversations(c *gin.Context) {
	schema := getSchemaName(c)
	stage := c.Query("stage")

	conversations, err := h.dashboard.ListConversations(schema, stage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}
	c.JSON(http.StatusOK, conversations)
}

func (h *ContactHandler) GetConversation(c *gin.Context) {
	schema := getSchemaName(c)
	phone := c.Param("phone")
	if !ValidPhone(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	contact, messages, err := h.dashboard.GetConversation(schema, phone, limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contact": contact, "messages": messages})
}

// SendMessage lets a human agent reply from the dashboard. The send is
// quota-checked and throttled like any other outbound message.
func (h *ContactHandler) SendMessage(c *gin.Context) {
	userID, schema := getUserIDAndSchema(c)
	phone := c.Param("phone")
	if !ValidPhone(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	content := SanitizeString(req.Content)
	if !ValidateLength(content, 1, 4096) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message must be 1-4096 characters"})
		return
	}

	user, err := h.userRepo.GetByID(userID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}
	if allowed, reason := h.usageRepo.CanSendMessage(userID, user.DailyLimit, user.MonthlyLimit); !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": reason})
		return
	}
	if !h.rateLimiter.Allow(userID) {
		wait := h.rateLimiter.WaitTime(userID)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Sending too fast",
			"retry_after": wait.Seconds(),
		})
		return
	}

	client := h.waManager.GetClient(userID)
	if client == nil || !client.IsLoggedIn() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WhatsApp not connected"})
		return
	}

	if err := client.SendMessage(phone, content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send: " + err.Error()})
		return
	}

	msg := entities.Message{
		ID:        uuid.New().String(),
		ChatPhone: phone,
		Content:   content,
		Sender:    entities.SenderHuman,
		Timestamp: time.Now(),
	}
	if err := h.messageRepo.Insert(schema, msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sent but failed to record message"})
		return
	}
	h.usageRepo.IncrementSent(userID)

	c.JSON(http.StatusOK, gin.H{"status": "sent", "message": msg})
}

// SetManualStage pins the contact's lifecycle stage. Keyword matching will
// not touch the contact until the lock is cleared.
func (h *ContactHandler) SetManualStage(c *gin.Context) {
	schema := getSchemaName(c)
	phone := c.Param("phone")
	if !ValidPhone(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	var req struct {
		Stage string `json:"stage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	stage := SanitizeString(req.Stage)
	if !ValidateLength(stage, 1, MaxNameLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stage name"})
		return
	}

	if err := h.dashboard.SetManualStage(schema, phone, stage); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set stage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "stage": stage, "locked": true})
}

// ClearManualOverride hands the contact back to automatic keyword matching
func (h *ContactHandler) ClearManualOverride(c *gin.Context) {
	schema := getSchemaName(c)
	phone := c.Param("phone")
	if !ValidPhone(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	if err := h.dashboard.ClearManualOverride(schema, phone); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear override"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "locked": false})
}

// SyncToSheets re-extracts the contact into every active sheet config,
// updating existing rows instead of appending duplicates
func (h *ContactHandler) SyncToSheets(c *gin.Context) {
	schema := getSchemaName(c)
	phone := c.Param("phone")
	if !ValidPhone(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	if err := h.dashboard.SyncContactToSheets(c.Request.Context(), schema, phone); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}
