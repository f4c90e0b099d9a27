package usecases

import (
	"fmt"
	"strings"
)

// AlertSender pushes a notification to the tenant owner's bound Telegram chat.
type AlertSender interface {
	SendAlert(userID int, text string) error
}

// LeadAlertService notifies tenant owners on Telegram when a contact reaches
// a watched lifecycle stage. It plugs into the LifecycleMatcher as its
// StageNotifier.
type LeadAlertService struct {
	Settings SettingSource
	Sender   AlertSender
}

func NewLeadAlertService(settings SettingSource, sender AlertSender) *LeadAlertService {
	return &LeadAlertService{Settings: settings, Sender: sender}
}

// StageChanged fires after an automatic lifecycle transition. Alert failures
// are logged and dropped.
func (s *LeadAlertService) StageChanged(schemaName, phone, stage string) {
	if !s.stageWatched(schemaName, stage) {
		return
	}

	userID, ok := tenantUserID(schemaName)
	if !ok {
		fmt.Printf("[ALERTS] Cannot derive tenant from schema %s\n", schemaName)
		return
	}

	text := fmt.Sprintf("🔔 New lead!\n\nContact: %s\nStage: %s", phone, stage)
	if err := s.Sender.SendAlert(userID, text); err != nil {
		fmt.Printf("[ALERTS] Failed to alert tenant %d: %v\n", userID, err)
	}
}

// stageWatched checks the tenant's alert_stages setting (comma-separated
// stage names). An empty setting means alert on every stage change.
func (s *LeadAlertService) stageWatched(schemaName, stage string) bool {
	raw, err := s.Settings.GetSetting(schemaName, "alert_stages")
	if err != nil {
		fmt.Printf("[ALERTS] Failed to read alert_stages for %s: %v\n", schemaName, err)
		return false
	}
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, want := range strings.Split(raw, ",") {
		if strings.EqualFold(strings.TrimSpace(want), stage) {
			return true
		}
	}
	return false
}

// tenantUserID extracts the user ID from a tenant schema name ("tenant_42").
func tenantUserID(schemaName string) (int, bool) {
	var id int
	if _, err := fmt.Sscanf(schemaName, "tenant_%d", &id); err != nil {
		return 0, false
	}
	return id, true
}
