package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatmimic_connect/internal/entities"
	"chatmimic_connect/internal/infrastructure"
	httphandler "chatmimic_connect/internal/interfaces/http"
	"chatmimic_connect/internal/repository"
	"chatmimic_connect/internal/usecases"

	"github.com/gin-gonic/gin"
	"go.mau.fi/whatsmeow/types/events"
)

func main() {
	cfg, err := infrastructure.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// Database
	pg, err := infrastructure.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database error: %v", err)
	}
	defer pg.Close()
	fmt.Println("✅ Connected to PostgreSQL")

	// Repositories
	userRepo := repository.NewUserRepository(pg.Pool)
	usageRepo := repository.NewUsageRepository(pg.Pool)
	contactRepo := repository.NewContactRepository(pg.Pool)
	messageRepo := repository.NewMessageRepository(pg.Pool)
	configRepo := repository.NewConfigRepository(pg.Pool)
	tenantManager := repository.NewTenantManager(pg.Pool)

	// Auth + bootstrap admin
	authUsecase := usecases.NewAuthUsecase(userRepo, tenantManager, cfg.JWTSecret)
	if err := authUsecase.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("❌ Failed to ensure admin account: %v", err)
	}

	// External clients
	aiClient := infrastructure.NewGroqClient(cfg.GroqAPIKey, cfg.GroqAPIBase, cfg.GroqModel)
	sheetsClient := infrastructure.NewSheetsClient()
	rateLimiter := infrastructure.NewMessageRateLimiter(cfg.SendRate, cfg.SendBurst)
	alertManager := infrastructure.NewAlertBotManager()
	alertManager.ChatBound = func(userID int, chatID int64) {
		if err := userRepo.UpdateAlertChatID(userID, chatID); err != nil {
			fmt.Printf("[ALERTS] Failed to persist chat binding for user %d: %v\n", userID, err)
		}
	}

	// Lead alerts plug into the lifecycle matcher as its notifier
	leadAlerts := usecases.NewLeadAlertService(configRepo, alertManager)

	matcher := usecases.NewLifecycleMatcher(configRepo, contactRepo)
	matcher.Notifier = leadAlerts
	matcher.VerifyWrites = true

	extraction := usecases.NewExtractionDispatcher(configRepo, aiClient, sheetsClient, func(schemaName string) string {
		token, err := configRepo.GetSetting(schemaName, "google_access_token")
		if err != nil {
			fmt.Printf("[EXTRACT] Failed to read access token for %s: %v\n", schemaName, err)
			return ""
		}
		return token
	})
	extraction.Messages = messageRepo

	replyService := usecases.NewReplyService(configRepo, aiClient)

	// WhatsApp per-tenant sessions
	waManager := infrastructure.NewWhatsAppManager(cfg.DevicesDir)

	// sendWhatsApp picks the tenant's outbound transport: the Business Cloud
	// API when configured in settings, the paired device session otherwise.
	sendWhatsApp := func(userID int, schemaName, to, content string) error {
		cloudToken, _ := configRepo.GetSetting(schemaName, "wa_cloud_token")
		cloudPhoneID, _ := configRepo.GetSetting(schemaName, "wa_cloud_phone_id")
		if cloudToken != "" && cloudPhoneID != "" {
			return infrastructure.NewWhatsAppBusinessClient(cloudToken, cloudPhoneID).SendMessage(to, content)
		}

		client := waManager.GetClient(userID)
		if client == nil || !client.IsLoggedIn() {
			return fmt.Errorf("whatsapp not connected for user %d", userID)
		}
		client.SendPresence(to)
		return client.SendMessage(to, content)
	}

	// The per-chat pipeline: persist, tag lifecycle, extract to sheets, then
	// auto-reply. Handlers run in this order for every message of a chat.
	persistHandler := func(schemaName string, msg entities.Message) {
		if err := messageRepo.Insert(schemaName, msg); err != nil {
			fmt.Printf("[PIPELINE] Failed to store message %s: %v\n", msg.ID, err)
			return
		}
		if msg.IsInbound() {
			if err := contactRepo.UpsertFromMessage(schemaName, msg.ChatPhone, "", msg.Content, msg.Timestamp); err != nil {
				fmt.Printf("[PIPELINE] Failed to upsert contact %s: %v\n", msg.ChatPhone, err)
			}
			if userID, ok := tenantUserID(schemaName); ok {
				if err := usageRepo.IncrementReceived(userID); err != nil {
					fmt.Printf("[PIPELINE] Failed to record received message for user %d: %v\n", userID, err)
				}
			}
		}
	}

	lifecycleHandler := func(schemaName string, msg entities.Message) {
		if !msg.IsInbound() {
			return
		}
		if _, err := matcher.Apply(schemaName, msg); err != nil {
			fmt.Printf("[PIPELINE] Lifecycle matching failed for %s: %v\n", msg.ChatPhone, err)
		}
	}

	extractionHandler := func(schemaName string, msg entities.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		extraction.Process(ctx, schemaName, msg)
	}

	replyHandler := func(schemaName string, msg entities.Message) {
		if !msg.IsInbound() {
			return
		}
		userID, ok := tenantUserID(schemaName)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		reply, enabled, err := replyService.GenerateReply(ctx, schemaName, msg)
		if err != nil {
			fmt.Printf("[PIPELINE] Auto-reply failed for %s: %v\n", msg.ChatPhone, err)
			return
		}
		if !enabled || reply == "" {
			return
		}

		user, err := userRepo.GetByID(userID)
		if err != nil || user == nil {
			return
		}
		if allowed, reason := usageRepo.CanSendMessage(userID, user.DailyLimit, user.MonthlyLimit); !allowed {
			fmt.Printf("[PIPELINE] Auto-reply blocked for user %d: %s\n", userID, reason)
			return
		}
		if !rateLimiter.Allow(userID) {
			time.Sleep(rateLimiter.WaitTime(userID))
			if !rateLimiter.Allow(userID) {
				fmt.Printf("[PIPELINE] Auto-reply throttled for user %d\n", userID)
				return
			}
		}

		if err := sendWhatsApp(userID, schemaName, msg.ChatPhone, reply); err != nil {
			fmt.Printf("[PIPELINE] Failed to send auto-reply to %s: %v\n", msg.ChatPhone, err)
			return
		}
		usageRepo.IncrementSent(userID)

		outbound := entities.Message{
			ID:        fmt.Sprintf("reply-%s-%d", msg.ID, time.Now().UnixNano()),
			ChatPhone: msg.ChatPhone,
			Content:   reply,
			Sender:    entities.SenderAgent,
			Timestamp: time.Now(),
		}
		if err := messageRepo.Insert(schemaName, outbound); err != nil {
			fmt.Printf("[PIPELINE] Failed to store auto-reply: %v\n", err)
		}
	}

	dispatcher := usecases.NewChatDispatcher(64, persistHandler, lifecycleHandler, extractionHandler, replyHandler)

	// Bridge whatsmeow events into the pipeline
	waManager.HandlerFactory = func(userID int, schemaName string) func(interface{}) {
		return func(evt interface{}) {
			messageEvt, ok := evt.(*events.Message)
			if !ok {
				return
			}

			client := waManager.GetClient(userID)
			if client == nil {
				return
			}

			id, sender, content := client.ParseMessage(messageEvt)
			if content == "" {
				return
			}

			senderType := entities.SenderUser
			if messageEvt.Info.IsFromMe {
				// Reply typed on the phone itself; record it, don't process it
				senderType = entities.SenderHuman
				sender = messageEvt.Info.Chat.User
			}

			dispatcher.Dispatch(schemaName, entities.Message{
				ID:        id,
				ChatPhone: sender,
				Content:   content,
				Sender:    senderType,
				Timestamp: messageEvt.Info.Timestamp,
			})
		}
	}

	// Restore live tenants
	restoreTenants(userRepo, waManager, alertManager)

	// HTTP API
	dashboard := usecases.NewDashboardUsecase(contactRepo, messageRepo, extraction)

	router := gin.Default()
	middleware := httphandler.NewMiddleware(cfg.JWTSecret)
	httphandler.SetupRoutes(router, httphandler.RouteDeps{
		Auth:               authUsecase,
		Dashboard:          dashboard,
		Dispatcher:         dispatcher,
		WAManager:          waManager,
		AlertManager:       alertManager,
		RateLimiter:        rateLimiter,
		UserRepo:           userRepo,
		UsageRepo:          usageRepo,
		MessageRepo:        messageRepo,
		ContactRepo:        contactRepo,
		ConfigRepo:         configRepo,
		Middleware:         middleware,
		WebhookVerifyToken: cfg.WebhookVerifyToken,
	})

	go func() {
		fmt.Printf("🚀 Server listening on %s\n", cfg.HTTPAddr)
		if err := router.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("⏳ Shutting down...")
	dispatcher.Shutdown()
	waManager.DisconnectAll()
	alertManager.DisconnectAll()
	fmt.Println("👋 Bye")
}

// restoreTenants reconnects WhatsApp sessions and alert bots for tenants that
// were active before the restart.
func restoreTenants(userRepo *repository.UserRepository, waManager *infrastructure.WhatsAppManager, alertManager *infrastructure.AlertBotManager) {
	users, err := userRepo.ListActive()
	if err != nil {
		fmt.Printf("⚠️  Failed to list tenants for restore: %v\n", err)
		return
	}

	for _, user := range users {
		if user.SchemaName == "" {
			continue
		}

		if user.WAEnabled {
			if _, err := waManager.ConnectClient(user.ID, user.SchemaName); err != nil {
				fmt.Printf("⚠️  Failed to restore WhatsApp for user %d: %v\n", user.ID, err)
			} else {
				fmt.Printf("✅ Restored WhatsApp session for user %d\n", user.ID)
			}
		}

		if user.AlertBotToken != "" {
			if _, err := alertManager.ConnectBot(user.ID, user.SchemaName, user.AlertBotToken, user.AlertChatID); err != nil {
				fmt.Printf("⚠️  Failed to restore alert bot for user %d: %v\n", user.ID, err)
			}
		}
	}
}

// tenantUserID extracts the owner user ID from a schema name ("tenant_42").
func tenantUserID(schemaName string) (int, bool) {
	var id int
	if _, err := fmt.Sscanf(schemaName, "tenant_%d", &id); err != nil {
		return 0, false
	}
	return id, true
}
