package usecases

import (
	"fmt"
	"strings"

	"chatmimic_connect/internal/entities"
)

// RuleSource loads a tenant's lifecycle keyword rules in evaluation order.
type RuleSource interface {
	GetLifecycleRules(schemaName string) ([]entities.LifecycleRule, error)
}

// ContactStore is the slice of the contact repository the matcher needs.
type ContactStore interface {
	GetByPhone(schemaName, phone string) (*entities.Contact, error)
	SetLifecycleIfAuto(schemaName, phone, stage string) (bool, error)
	ForceSetLifecycle(schemaName, phone, stage string) error
}

// StageNotifier is invoked after a successful automatic stage change.
type StageNotifier interface {
	StageChanged(schemaName, phone, stage string)
}

// LifecycleMatcher tags contacts with CRM stages based on keyword rules.
// Rules are evaluated in stored order and the first rule with any keyword
// contained in the message wins. A contact whose stage was set by a human
// (manually_set_lifecycle) is never touched.
type LifecycleMatcher struct {
	Rules    RuleSource
	Contacts ContactStore
	Notifier StageNotifier // optional

	// VerifyWrites re-reads the contact after the guarded update and retries
	// once with an upsert when the stage did not stick.
	VerifyWrites bool
}

func NewLifecycleMatcher(rules RuleSource, contacts ContactStore) *LifecycleMatcher {
	return &LifecycleMatcher{
		Rules:    rules,
		Contacts: contacts,
	}
}

// Apply runs the keyword rules against one inbound message. Returns true when
// a stage was written. A matched rule whose stage equals the contact's current
// stage is a no-op and returns false.
func (m *LifecycleMatcher) Apply(schemaName string, msg entities.Message) (bool, error) {
	rules, err := m.Rules.GetLifecycleRules(schemaName)
	if err != nil {
		return false, fmt.Errorf("load lifecycle rules: %w", err)
	}
	if len(rules) == 0 {
		return false, nil
	}

	contact, err := m.Contacts.GetByPhone(schemaName, msg.ChatPhone)
	if err != nil {
		return false, fmt.Errorf("load contact: %w", err)
	}
	if contact != nil && contact.ManuallySetLifecycle {
		// Human owns this contact's stage now
		return false, nil
	}

	content := strings.ToLower(msg.Content)

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !matchesAnyKeyword(content, rule.Keywords) {
			continue
		}

		// First match wins
		if contact != nil && contact.Lifecycle == rule.Name {
			return false, nil
		}
		if err := m.writeStage(schemaName, msg.ChatPhone, rule.Name); err != nil {
			return false, err
		}

		fmt.Printf("[LIFECYCLE] %s -> %s (rule %s)\n", msg.ChatPhone, rule.Name, rule.ID)
		if m.Notifier != nil {
			m.Notifier.StageChanged(schemaName, msg.ChatPhone, rule.Name)
		}
		return true, nil
	}

	return false, nil
}

// writeStage performs the guarded update, optionally verifying the write and
// retrying once with an upsert.
func (m *LifecycleMatcher) writeStage(schemaName, phone, stage string) error {
	updated, err := m.Contacts.SetLifecycleIfAuto(schemaName, phone, stage)
	if err != nil {
		return fmt.Errorf("write lifecycle: %w", err)
	}
	if !updated {
		// Contact row missing; create it with the stage
		if err := m.Contacts.ForceSetLifecycle(schemaName, phone, stage); err != nil {
			return fmt.Errorf("force write lifecycle: %w", err)
		}
	}

	if !m.VerifyWrites {
		return nil
	}

	after, err := m.Contacts.GetByPhone(schemaName, phone)
	if err != nil {
		return fmt.Errorf("verify lifecycle: %w", err)
	}
	if after == nil || (after.Lifecycle != stage && !after.ManuallySetLifecycle) {
		if err := m.Contacts.ForceSetLifecycle(schemaName, phone, stage); err != nil {
			return fmt.Errorf("force write lifecycle: %w", err)
		}
	}
	return nil
}

func matchesAnyKeyword(loweredContent string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" && strings.Contains(loweredContent, kw) {
			return true
		}
	}
	return false
}
