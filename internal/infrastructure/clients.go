package infrastructure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatmimic_connect/internal/interfaces"
)

// WhatsAppBusinessClient sends messages through the WhatsApp Business Cloud
// API (graph.facebook.com). Used by tenants on the hosted API instead of a
// paired device session.
type WhatsAppBusinessClient struct {
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
}

func NewWhatsAppBusinessClient(accessToken, phoneNumberID string) interfaces.Messenger {
	return &WhatsAppBusinessClient{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WhatsAppBusinessClient) SendMessage(to, content string) error {
	url := fmt.Sprintf("https://graph.facebook.com/v18.0/%s/messages", w.phoneNumberID)
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]string{
			"body": content,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("cloud API returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
