package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TenantManager struct {
	db *pgxpool.Pool
}

func NewTenantManager(db *pgxpool.Pool) *TenantManager {
	return &TenantManager{db: db}
}

// sanitizeSchemaName ensures schema name is safe for SQL
func sanitizeSchemaName(name string) string {
	reg := regexp.MustCompile("[^a-zA-Z0-9_]+")
	return strings.ToLower(reg.ReplaceAllString(name, "_"))
}

// CreateTenantSchema creates a new schema for a user with all required tables
func (t *TenantManager) CreateTenantSchema(userID int) (string, error) {
	ctx := context.Background()
	schemaName := fmt.Sprintf("tenant_%d", userID)

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	if err != nil {
		return "", fmt.Errorf("failed to create schema: %w", err)
	}

	tables := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.contacts (
				phone_number VARCHAR(32) PRIMARY KEY,
				name VARCHAR(256) DEFAULT '',
				lifecycle VARCHAR(64) DEFAULT '',
				manually_set_lifecycle BOOLEAN DEFAULT FALSE,
				last_message TEXT DEFAULT '',
				last_message_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)
		`, schemaName),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.messages (
				id VARCHAR(128) PRIMARY KEY,
				chat_phone VARCHAR(32) NOT NULL,
				content TEXT NOT NULL,
				sender VARCHAR(10) NOT NULL,
				timestamp TIMESTAMP NOT NULL
			)
		`, schemaName),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS idx_%s_messages_chat ON %s.messages (chat_phone, timestamp)
		`, schemaName, schemaName),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.lifecycle_rules (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(64) NOT NULL,
				keywords JSONB DEFAULT '[]',
				active BOOLEAN DEFAULT TRUE,
				position INT NOT NULL DEFAULT 0
			)
		`, schemaName),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.sheet_configs (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(256) NOT NULL,
				sheet_id VARCHAR(128) NOT NULL,
				columns JSONB DEFAULT '[]',
				active BOOLEAN DEFAULT TRUE,
				add_trigger VARCHAR(32) DEFAULT 'all_messages',
				last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)
		`, schemaName),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.settings (
				key VARCHAR(64) PRIMARY KEY,
				value TEXT,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)
		`, schemaName),
	}

	for _, ddl := range tables {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return "", fmt.Errorf("failed to create table: %w", err)
		}
	}

	return schemaName, tx.Commit(ctx)
}

// DropTenantSchema removes a user's schema and all data
func (t *TenantManager) DropTenantSchema(schemaName string) error {
	ctx := context.Background()
	schemaName = sanitizeSchemaName(schemaName)

	_, err := t.db.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
	return err
}
