package repository

import (
	"context"
	"fmt"
	"time"

	"chatmimic_connect/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContactRepository stores a tenant's WhatsApp contacts (leads). Phone number
// is the primary key within a tenant schema.
type ContactRepository struct {
	db *pgxpool.Pool
}

func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// UpsertFromMessage creates the contact on first inbound message and refreshes
// the last-message preview on every later one. Lifecycle fields are untouched.
func (r *ContactRepository) UpsertFromMessage(schemaName, phone, name, lastMessage string, at time.Time) error {
	table := qualifyTable(schemaName, "contacts")
	_, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		INSERT INTO %s (phone_number, name, last_message, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (phone_number) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE %s.name END,
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at
	`, table, table), phone, name, lastMessage, at)
	return err
}

// GetByPhone returns a contact or nil when unknown.
func (r *ContactRepository) GetByPhone(schemaName, phone string) (*entities.Contact, error) {
	table := qualifyTable(schemaName, "contacts")
	var c entities.Contact
	err := r.db.QueryRow(context.Background(), fmt.Sprintf(`
		SELECT phone_number, name, lifecycle, manually_set_lifecycle, last_message, last_message_at, created_at
		FROM %s WHERE phone_number=$1
	`, table), phone).Scan(&c.PhoneNumber, &c.Name, &c.Lifecycle, &c.ManuallySetLifecycle, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns contacts ordered by recency, optionally filtered by stage.
func (r *ContactRepository) List(schemaName, stage string) ([]entities.Contact, error) {
	table := qualifyTable(schemaName, "contacts")
	query := fmt.Sprintf(`
		SELECT phone_number, name, lifecycle, manually_set_lifecycle, last_message, last_message_at, created_at
		FROM %s
	`, table)
	args := []interface{}{}
	if stage != "" {
		query += " WHERE lifecycle=$1"
		args = append(args, stage)
	}
	query += " ORDER BY last_message_at DESC NULLS LAST"

	rows, err := r.db.Query(context.Background(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []entities.Contact{}
	for rows.Next() {
		var c entities.Contact
		if err := rows.Scan(&c.PhoneNumber, &c.Name, &c.Lifecycle, &c.ManuallySetLifecycle, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// SetLifecycleIfAuto writes the stage only while the manual-override flag is
// clear. Returns whether a row was actually updated.
func (r *ContactRepository) SetLifecycleIfAuto(schemaName, phone, stage string) (bool, error) {
	table := qualifyTable(schemaName, "contacts")
	tag, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		UPDATE %s SET lifecycle=$1 WHERE phone_number=$2 AND manually_set_lifecycle = FALSE
	`, table), stage, phone)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ForceSetLifecycle upserts the stage, creating the contact row if it does
// not exist yet. The manual-override guard still applies on conflict.
func (r *ContactRepository) ForceSetLifecycle(schemaName, phone, stage string) error {
	table := qualifyTable(schemaName, "contacts")
	_, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		INSERT INTO %s (phone_number, lifecycle, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (phone_number) DO UPDATE SET lifecycle = EXCLUDED.lifecycle
		WHERE %s.manually_set_lifecycle = FALSE
	`, table, table), phone, stage)
	return err
}

// SetManualLifecycle records a human-chosen stage and locks out automation.
func (r *ContactRepository) SetManualLifecycle(schemaName, phone, stage string) error {
	table := qualifyTable(schemaName, "contacts")
	_, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		INSERT INTO %s (phone_number, lifecycle, manually_set_lifecycle, created_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (phone_number) DO UPDATE SET lifecycle = EXCLUDED.lifecycle, manually_set_lifecycle = TRUE
	`, table), phone, stage)
	return err
}

// ClearManualOverride re-enables automatic tagging for a contact. Only ever
// called from an explicit dashboard action, never automatically.
func (r *ContactRepository) ClearManualOverride(schemaName, phone string) error {
	table := qualifyTable(schemaName, "contacts")
	tag, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		UPDATE %s SET manually_set_lifecycle = FALSE WHERE phone_number=$1
	`, table), phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact not found")
	}
	return nil
}

// CountByStage returns the number of contacts per lifecycle stage.
func (r *ContactRepository) CountByStage(schemaName string) (map[string]int, error) {
	table := qualifyTable(schemaName, "contacts")
	rows, err := r.db.Query(context.Background(),
		fmt.Sprintf("SELECT COALESCE(NULLIF(lifecycle, ''), 'untagged'), COUNT(*) FROM %s GROUP BY 1", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[stage] = n
	}
	return counts, nil
}

// Count returns the total number of contacts.
func (r *ContactRepository) Count(schemaName string) (int, error) {
	table := qualifyTable(schemaName, "contacts")
	var n int
	err := r.db.QueryRow(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	return n, err
}
