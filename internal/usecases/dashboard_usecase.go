package usecases

import (
	"context"
	"errors"
	"time"

	"chatmimic_connect/internal/entities"
	"chatmimic_connect/internal/repository"
)

// DashboardStats is the aggregate view the dashboard home screen renders.
type DashboardStats struct {
	TotalContacts    int            `json:"total_contacts"`
	ContactsByStage  map[string]int `json:"contacts_by_stage"`
	MessagesToday    int            `json:"messages_today"`
	ProcessedMarkers int            `json:"processed_markers"`
}

// Conversation is one row in the dashboard's chat list.
type Conversation struct {
	Contact      entities.Contact `json:"contact"`
	MessageCount int              `json:"message_count"`
}

type DashboardUsecase struct {
	contacts   *repository.ContactRepository
	messages   *repository.MessageRepository
	extraction *ExtractionDispatcher
}

func NewDashboardUsecase(contacts *repository.ContactRepository, messages *repository.MessageRepository, extraction *ExtractionDispatcher) *DashboardUsecase {
	return &DashboardUsecase{
		contacts:   contacts,
		messages:   messages,
		extraction: extraction,
	}
}

func (uc *DashboardUsecase) GetStats(schemaName string) (*DashboardStats, error) {
	total, err := uc.contacts.Count(schemaName)
	if err != nil {
		return nil, err
	}
	byStage, err := uc.contacts.CountByStage(schemaName)
	if err != nil {
		return nil, err
	}

	midnight := time.Now().Truncate(24 * time.Hour)
	today, err := uc.messages.CountSince(schemaName, midnight)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		TotalContacts:    total,
		ContactsByStage:  byStage,
		MessagesToday:    today,
		ProcessedMarkers: uc.extraction.Markers().Size(),
	}, nil
}

// ListConversations returns the tenant's contacts, optionally filtered by
// lifecycle stage, with per-chat message counts.
func (uc *DashboardUsecase) ListConversations(schemaName, stage string) ([]Conversation, error) {
	contacts, err := uc.contacts.List(schemaName, stage)
	if err != nil {
		return nil, err
	}

	conversations := make([]Conversation, 0, len(contacts))
	for _, c := range contacts {
		count, err := uc.messages.CountByChat(schemaName, c.PhoneNumber)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, Conversation{Contact: c, MessageCount: count})
	}
	return conversations, nil
}

// GetConversation returns a contact and its message history.
func (uc *DashboardUsecase) GetConversation(schemaName, phone string, limit int) (*entities.Contact, []entities.Message, error) {
	contact, err := uc.contacts.GetByPhone(schemaName, phone)
	if err != nil {
		return nil, nil, err
	}
	if contact == nil {
		return nil, nil, errors.New("contact not found")
	}

	messages, err := uc.messages.ListByChat(schemaName, phone, limit)
	if err != nil {
		return nil, nil, err
	}
	return contact, messages, nil
}

// SetManualStage pins a contact's lifecycle stage. Automatic matching skips
// the contact until the override is cleared.
func (uc *DashboardUsecase) SetManualStage(schemaName, phone, stage string) error {
	return uc.contacts.SetManualLifecycle(schemaName, phone, stage)
}

// ClearManualOverride hands the contact's stage back to automatic matching.
func (uc *DashboardUsecase) ClearManualOverride(schemaName, phone string) error {
	return uc.contacts.ClearManualOverride(schemaName, phone)
}

// SyncContactToSheets re-extracts the contact and upserts its row in every
// active sheet config.
func (uc *DashboardUsecase) SyncContactToSheets(ctx context.Context, schemaName, phone string) error {
	contact, err := uc.contacts.GetByPhone(schemaName, phone)
	if err != nil {
		return err
	}
	if contact == nil {
		return errors.New("contact not found")
	}
	return uc.extraction.SyncContact(ctx, schemaName, *contact)
}
