package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// WhatsAppClient wraps a whatsmeow session for one tenant. The device store
// lives in a per-tenant SQLite file.
type WhatsAppClient struct {
	Client      *whatsmeow.Client
	HandlerFunc func(evt interface{})

	UserID     int    // Owner user ID for multi-tenancy
	SchemaName string // Tenant schema for data isolation

	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppClient(dbPath string) (*WhatsAppClient, error) {
	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New(context.Background(), "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %v", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	return &WhatsAppClient{
		Client: client,
	}, nil
}

// NewWhatsAppClientWithUser creates a client bound to a tenant.
func NewWhatsAppClientWithUser(dbPath string, userID int, schemaName string) (*WhatsAppClient, error) {
	client, err := NewWhatsAppClient(dbPath)
	if err != nil {
		return nil, err
	}
	client.UserID = userID
	client.SchemaName = schemaName
	return client, nil
}

func (w *WhatsAppClient) Connect() error {
	if w.Client.Store.ID == nil {
		// No ID stored, new login
		qrChan, _ := w.Client.GetQRChannel(context.Background())
		err := w.Client.Connect()
		if err != nil {
			return err
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					w.qrLock.Lock()
					w.qrCode = evt.Code
					w.qrLock.Unlock()
				} else {
					fmt.Println("[WA] Login event:", evt.Event)
				}
			}
		}()
	} else {
		// Already paired
		err := w.Client.Connect()
		if err != nil {
			return err
		}
		fmt.Printf("[WA] Connected existing session for user %d\n", w.UserID)
	}
	return nil
}

func (w *WhatsAppClient) GetQR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

// GetUserInfo returns connected phone number and push name.
func (w *WhatsAppClient) GetUserInfo() (string, string) {
	if w.Client.Store.ID == nil {
		return "", ""
	}
	return w.Client.Store.ID.User, w.Client.Store.PushName
}

func (w *WhatsAppClient) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

func (w *WhatsAppClient) Logout() error {
	w.qrLock.Lock()
	w.qrCode = ""
	w.qrLock.Unlock()

	err := w.Client.Logout(context.Background())
	if err != nil {
		return err
	}

	w.Client.Disconnect()

	// New QR channel so the dashboard can re-pair immediately
	qrChan, _ := w.Client.GetQRChannel(context.Background())
	err = w.Client.Connect()
	if err != nil {
		fmt.Printf("[WA] Failed to reconnect after logout: %v\n", err)
		return err
	}

	go func() {
		for evt := range qrChan {
			if evt.Event == "code" {
				w.qrLock.Lock()
				w.qrCode = evt.Code
				w.qrLock.Unlock()
			}
		}
	}()

	return nil
}

func (w *WhatsAppClient) Disconnect() {
	w.Client.Disconnect()
}

func (w *WhatsAppClient) AddHandler(handler func(interface{})) {
	w.Client.AddEventHandler(handler)
}

func (w *WhatsAppClient) SendMessage(to string, content string) error {
	// Users pass bare numbers ("628..."); convert to a JID
	jid, err := types.ParseJID(to + "@s.whatsapp.net")
	if err != nil {
		return fmt.Errorf("invalid number format: %v", err)
	}

	_, err = w.Client.SendMessage(context.Background(), jid, &waProto.Message{
		Conversation: &content,
	})

	return err
}

// SendPresence broadcasts a typing indicator to the chat.
func (w *WhatsAppClient) SendPresence(to string) {
	jid, _ := types.ParseJID(to + "@s.whatsapp.net")
	w.Client.SendPresence(context.Background(), types.PresenceAvailable)
	w.Client.SendChatPresence(context.Background(), jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// ParseMessage extracts the store message ID, sender phone number and text
// content from a whatsmeow message event.
func (w *WhatsAppClient) ParseMessage(evt *events.Message) (string, string, string) {
	id := evt.Info.ID
	sender := evt.Info.Sender.User
	var content string

	if evt.Message.Conversation != nil {
		content = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil {
		content = *evt.Message.ExtendedTextMessage.Text
	}

	return id, sender, content
}
