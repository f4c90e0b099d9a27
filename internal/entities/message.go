package entities

import "time"

// Sender roles for a chat message.
const (
	SenderUser  = "user"  // the WhatsApp customer
	SenderAgent = "agent" // the AI bot
	SenderHuman = "human" // a human operator replying from the dashboard
)

type Message struct {
	ID        string    `json:"id"`
	ChatPhone string    `json:"chat_phone"` // phone number of the chat this message belongs to
	Content   string    `json:"message"`
	Sender    string    `json:"sender"` // user / agent / human
	Timestamp time.Time `json:"timestamp"`
}

// IsInbound reports whether the message came from the customer side.
func (m Message) IsInbound() bool {
	return m.Sender == SenderUser
}
