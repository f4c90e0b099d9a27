package infrastructure

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AlertBotInstance is a single tenant's Telegram lead-alert bot.
type AlertBotInstance struct {
	Bot       *tgbotapi.BotAPI
	UserID    int
	Schema    string
	ChatID    int64 // bound chat; 0 until the owner sends /start
	StopChan  chan struct{}
	IsRunning bool
	mu        sync.Mutex
}

func (a *AlertBotInstance) boundChat() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ChatID
}

func (a *AlertBotInstance) bindChat(chatID int64) {
	a.mu.Lock()
	a.ChatID = chatID
	a.mu.Unlock()
}

// AlertBotManager runs one Telegram bot per tenant and delivers lead alerts
// to the chat the tenant owner bound with /start.
type AlertBotManager struct {
	bots map[int]*AlertBotInstance
	mu   sync.RWMutex

	// Invoked when an owner binds a chat with /start so the binding can be
	// persisted across restarts.
	ChatBound func(userID int, chatID int64)
}

func NewAlertBotManager() *AlertBotManager {
	return &AlertBotManager{
		bots: make(map[int]*AlertBotInstance),
	}
}

// GetBot returns the running bot for a tenant (nil if not connected).
func (m *AlertBotManager) GetBot(userID int) *AlertBotInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bots[userID]
}

// ValidateToken checks a token by creating a throwaway bot handle.
func (m *AlertBotManager) ValidateToken(token string) (string, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return bot.Self.UserName, nil
}

// ConnectBot starts the alert bot for a tenant. chatID may be a previously
// persisted binding (0 when the owner has not run /start yet).
func (m *AlertBotManager) ConnectBot(userID int, schema, token string, chatID int64) (*AlertBotInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bots[userID]; ok && existing.IsRunning {
		return existing, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	instance := &AlertBotInstance{
		Bot:      bot,
		UserID:   userID,
		Schema:   schema,
		ChatID:   chatID,
		StopChan: make(chan struct{}),
	}

	m.bots[userID] = instance
	go m.startPolling(instance)

	return instance, nil
}

// startPolling watches for /start so the owner can bind the alert chat.
func (m *AlertBotManager) startPolling(instance *AlertBotInstance) {
	instance.mu.Lock()
	instance.IsRunning = true
	instance.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := instance.Bot.GetUpdatesChan(u)

	fmt.Printf("[ALERTS] Started alert bot for user %d (@%s)\n", instance.UserID, instance.Bot.Self.UserName)

	for {
		select {
		case <-instance.StopChan:
			fmt.Printf("[ALERTS] Stopped alert bot for user %d\n", instance.UserID)
			instance.mu.Lock()
			instance.IsRunning = false
			instance.mu.Unlock()
			return
		case update := <-updates:
			m.handleUpdate(instance, update)
		}
	}
}

func (m *AlertBotManager) handleUpdate(instance *AlertBotInstance, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID

	if update.Message.IsCommand() && update.Message.Command() == "start" {
		instance.bindChat(chatID)
		if m.ChatBound != nil {
			m.ChatBound(instance.UserID, chatID)
		}
		reply := tgbotapi.NewMessage(chatID, "✅ Lead alerts are now active for this chat.")
		instance.Bot.Send(reply)
		return
	}

	reply := tgbotapi.NewMessage(chatID, "This bot only delivers lead alerts. Send /start to bind this chat.")
	instance.Bot.Send(reply)
}

// SendAlert delivers an alert to the tenant's bound chat.
func (m *AlertBotManager) SendAlert(userID int, text string) error {
	m.mu.RLock()
	instance, ok := m.bots[userID]
	m.mu.RUnlock()

	if !ok || !instance.IsRunning {
		return fmt.Errorf("alert bot not connected for user %d", userID)
	}

	chatID := instance.boundChat()
	if chatID == 0 {
		return fmt.Errorf("alert chat not bound for user %d (owner must send /start)", userID)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, err := instance.Bot.Send(msg)
	return err
}

// DisconnectBot stops a tenant's alert bot.
func (m *AlertBotManager) DisconnectBot(userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if instance, ok := m.bots[userID]; ok {
		close(instance.StopChan)
		delete(m.bots, userID)
	}
}

// GetStatus returns connection status for a tenant's alert bot.
func (m *AlertBotManager) GetStatus(userID int) (connected bool, botName string, bound bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if instance, ok := m.bots[userID]; ok && instance.IsRunning {
		return true, instance.Bot.Self.UserName, instance.boundChat() != 0
	}
	return false, "", false
}

// DisconnectAll stops all bots (for graceful shutdown).
func (m *AlertBotManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, instance := range m.bots {
		close(instance.StopChan)
	}
	m.bots = make(map[int]*AlertBotInstance)
}
