package entities

import "time"

// Contact is a WhatsApp lead/customer owned by a tenant. The phone number is
// the identity key. Lifecycle holds the current CRM stage label (empty when
// never tagged). Once ManuallySetLifecycle is true, automatic tagging leaves
// the contact alone until a human clears the flag.
type Contact struct {
	PhoneNumber          string    `json:"phone_number"`
	Name                 string    `json:"name"`
	Lifecycle            string    `json:"lifecycle"`
	ManuallySetLifecycle bool      `json:"manually_set_lifecycle"`
	LastMessage          string    `json:"last_message"`
	LastMessageAt        time.Time `json:"last_message_at"`
	CreatedAt            time.Time `json:"created_at"`
}
