package usecases

import (
	"errors"
	"testing"
)

type fakeAlertSender struct {
	sent []int
	err  error
}

func (f *fakeAlertSender) SendAlert(userID int, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, userID)
	return nil
}

func TestLeadAlertsFireForWatchedStages(t *testing.T) {
	tests := []struct {
		name     string
		watched  string
		stage    string
		wantSent int
	}{
		{"empty filter alerts everything", "", "Hot Lead", 1},
		{"watched stage", "Hot Lead,Customer", "Hot Lead", 1},
		{"case insensitive", "hot lead", "Hot Lead", 1},
		{"unwatched stage", "Customer", "Hot Lead", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeAlertSender{}
			svc := NewLeadAlertService(&fakeSettings{values: map[string]string{
				"alert_stages": tt.watched,
			}}, sender)

			svc.StageChanged("tenant_42", "628111222333", tt.stage)

			if len(sender.sent) != tt.wantSent {
				t.Fatalf("sent %d alerts, want %d", len(sender.sent), tt.wantSent)
			}
			if tt.wantSent == 1 && sender.sent[0] != 42 {
				t.Errorf("alerted user %d, want 42", sender.sent[0])
			}
		})
	}
}

func TestLeadAlertsSwallowSenderErrors(t *testing.T) {
	sender := &fakeAlertSender{err: errors.New("bot offline")}
	svc := NewLeadAlertService(&fakeSettings{values: map[string]string{}}, sender)

	// Must not panic or propagate
	svc.StageChanged("tenant_42", "628111222333", "Hot Lead")
}

func TestTenantUserID(t *testing.T) {
	tests := []struct {
		schema string
		wantID int
		wantOK bool
	}{
		{"tenant_7", 7, true},
		{"tenant_123", 123, true},
		{"public", 0, false},
	}
	for _, tt := range tests {
		id, ok := tenantUserID(tt.schema)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("tenantUserID(%q) = (%d, %v), want (%d, %v)", tt.schema, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
