package http

import (
	"net/http"

	"chatmimic_connect/internal/entities"
	"chatmimic_connect/internal/repository"

	"github.com/gin-gonic/gin"
)

// ConfigHandler exposes per-tenant lifecycle rules, sheet configs and settings
type ConfigHandler struct {
	configRepo *repository.ConfigRepository
}

func NewConfigHandler(configRepo *repository.ConfigRepository) *ConfigHandler {
	return &ConfigHandler{configRepo: configRepo}
}

func (h *ConfigHandler) RegisterRoutes(api *gin.RouterGroup) {
	rules := api.Group("/lifecycle-rules")
	{
		rules.GET("", h.GetLifecycleRules)
		rules.POST("", h.CreateLifecycleRule)
		rules.PUT("/:id", h.UpdateLifecycleRule)
		rules.DELETE("/:id", h.DeleteLifecycleRule)
	}

	sheets := api.Group("/sheet-configs")
	{
		sheets.GET("", h.GetSheetConfigs)
		sheets.POST("", h.CreateSheetConfig)
		sheets.PUT("/:id", h.UpdateSheetConfig)
		sheets.DELETE("/:id", h.DeleteSheetConfig)
	}

	settings := api.Group("/settings")
	{
		settings.GET("", h.GetSettings)
		settings.POST("", h.SetSetting)
	}
}

// ========================================
// Lifecycle Rules
// ========================================

func (h *ConfigHandler) GetLifecycleRules(c *gin.Context) {
	schema := getSchemaName(c)
	rules, err := h.configRepo.GetLifecycleRules(schema)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *ConfigHandler) CreateLifecycleRule(c *gin.Context) {
	schema := getSchemaName(c)

	var rule entities.LifecycleRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !validRulePayload(&rule) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule needs a name and at least one keyword"})
		return
	}

	if err := h.configRepo.CreateLifecycleRule(schema, &rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *ConfigHandler) UpdateLifecycleRule(c *gin.Context) {
	schema := getSchemaName(c)
	id := c.Param("id")
	if !ValidSlug(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}

	var rule entities.LifecycleRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	rule.ID = id
	if !validRulePayload(&rule) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule needs a name and at least one keyword"})
		return
	}

	if err := h.configRepo.UpdateLifecycleRule(schema, &rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *ConfigHandler) DeleteLifecycleRule(c *gin.Context) {
	schema := getSchemaName(c)
	id := c.Param("id")
	if !ValidSlug(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule ID"})
		return
	}

	if err := h.configRepo.DeleteLifecycleRule(schema, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func validRulePayload(rule *entities.LifecycleRule) bool {
	if !ValidateLength(rule.Name, 1, MaxNameLength) {
		return false
	}
	cleaned := rule.Keywords[:0]
	for _, kw := range rule.Keywords {
		kw = SanitizeString(kw)
		if kw != "" && len(kw) <= MaxKeywordLength {
			cleaned = append(cleaned, kw)
		}
	}
	rule.Keywords = cleaned
	return len(rule.Keywords) > 0
}

// ========================================
// Sheet Configs
// ========================================

func (h *ConfigHandler) GetSheetConfigs(c *gin.Context) {
	schema := getSchemaName(c)
	configs, err := h.configRepo.GetSheetConfigs(schema)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sheet configs"})
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (h *ConfigHandler) CreateSheetConfig(c *gin.Context) {
	schema := getSchemaName(c)

	var cfg entities.SheetConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !validSheetPayload(&cfg) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Config needs a name, sheet ID and at least one column"})
		return
	}

	if err := h.configRepo.CreateSheetConfig(schema, &cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sheet config"})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *ConfigHandler) UpdateSheetConfig(c *gin.Context) {
	schema := getSchemaName(c)
	id := c.Param("id")
	if !ValidSlug(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config ID"})
		return
	}

	var cfg entities.SheetConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	cfg.ID = id
	if !validSheetPayload(&cfg) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Config needs a name, sheet ID and at least one column"})
		return
	}

	if err := h.configRepo.UpdateSheetConfig(schema, &cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update sheet config"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *ConfigHandler) DeleteSheetConfig(c *gin.Context) {
	schema := getSchemaName(c)
	id := c.Param("id")
	if !ValidSlug(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config ID"})
		return
	}

	if err := h.configRepo.DeleteSheetConfig(schema, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete sheet config"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func validSheetPayload(cfg *entities.SheetConfig) bool {
	if !ValidateLength(cfg.Name, 1, MaxNameLength) || cfg.SheetID == "" {
		return false
	}
	if len(cfg.Columns) == 0 {
		return false
	}
	for i := range cfg.Columns {
		col := &cfg.Columns[i]
		if col.ID == "" || !ValidSlug(col.ID) {
			return false
		}
		col.Description = TruncateString(SanitizeString(col.Description), MaxPromptLength)
		col.AIPrompt = TruncateString(SanitizeString(col.AIPrompt), MaxPromptLength)
	}
	if cfg.AddTrigger == "" {
		cfg.AddTrigger = "all_messages"
	}
	return cfg.AddTrigger == "all_messages" || cfg.AddTrigger == "first_message"
}

// ========================================
// Settings
// ========================================

func (h *ConfigHandler) GetSettings(c *gin.Context) {
	schema := getSchemaName(c)
	settings, err := h.configRepo.GetAllSettings(schema)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *ConfigHandler) SetSetting(c *gin.Context) {
	schema := getSchemaName(c)

	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidSlug(req.Key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting key"})
		return
	}
	value := TruncateString(SanitizeString(req.Value), MaxPromptLength)

	if err := h.configRepo.SetSetting(schema, req.Key, value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "key": req.Key})
}
