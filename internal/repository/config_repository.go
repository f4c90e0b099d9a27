package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatmimic_connect/internal/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConfigRepository stores per-tenant automation configuration: lifecycle
// keyword rules, Google Sheet extraction configs and free-form settings.
type ConfigRepository struct {
	db *pgxpool.Pool
}

func NewConfigRepository(db *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// qualifyTable returns schema-qualified table name
func qualifyTable(schema, table string) string {
	if schema == "" || schema == "public" {
		return table
	}
	return fmt.Sprintf("%s.%s", schema, table)
}

// ---------------- Lifecycle rules ----------------

// GetLifecycleRules returns all rules in evaluation (position) order.
func (r *ConfigRepository) GetLifecycleRules(schemaName string) ([]entities.LifecycleRule, error) {
	table := qualifyTable(schemaName, "lifecycle_rules")
	rows, err := r.db.Query(context.Background(),
		fmt.Sprintf("SELECT id, name, keywords, active, position FROM %s ORDER BY position ASC", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []entities.LifecycleRule{}
	for rows.Next() {
		var rule entities.LifecycleRule
		var keywords json.RawMessage
		if err := rows.Scan(&rule.ID, &rule.Name, &keywords, &rule.Active, &rule.Position); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(keywords, &rule.Keywords); err != nil {
			return nil, fmt.Errorf("invalid keywords json for rule %s: %w", rule.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// CreateLifecycleRule inserts a rule at the end of the evaluation order.
func (r *ConfigRepository) CreateLifecycleRule(schemaName string, rule *entities.LifecycleRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	keywords, err := json.Marshal(rule.Keywords)
	if err != nil {
		return err
	}
	table := qualifyTable(schemaName, "lifecycle_rules")
	return r.db.QueryRow(context.Background(), fmt.Sprintf(`
		INSERT INTO %s (id, name, keywords, active, position)
		VALUES ($1, $2, $3, $4, COALESCE((SELECT MAX(position)+1 FROM %s), 0))
		RETURNING position
	`, table, table), rule.ID, rule.Name, keywords, rule.Active).Scan(&rule.Position)
}

// UpdateLifecycleRule updates name, keywords and active flag.
func (r *ConfigRepository) UpdateLifecycleRule(schemaName string, rule *entities.LifecycleRule) error {
	keywords, err := json.Marshal(rule.Keywords)
	if err != nil {
		return err
	}
	table := qualifyTable(schemaName, "lifecycle_rules")
	tag, err := r.db.Exec(context.Background(),
		fmt.Sprintf("UPDATE %s SET name=$1, keywords=$2, active=$3 WHERE id=$4", table),
		rule.Name, keywords, rule.Active, rule.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// DeleteLifecycleRule removes a rule.
func (r *ConfigRepository) DeleteLifecycleRule(schemaName, id string) error {
	table := qualifyTable(schemaName, "lifecycle_rules")
	_, err := r.db.Exec(context.Background(), fmt.Sprintf("DELETE FROM %s WHERE id=$1", table), id)
	return err
}

// ---------------- Sheet configs ----------------

// GetSheetConfigs returns all sheet configs for a tenant.
func (r *ConfigRepository) GetSheetConfigs(schemaName string) ([]entities.SheetConfig, error) {
	table := qualifyTable(schemaName, "sheet_configs")
	rows, err := r.db.Query(context.Background(),
		fmt.Sprintf("SELECT id, name, sheet_id, columns, active, add_trigger, last_updated FROM %s ORDER BY last_updated DESC", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []entities.SheetConfig{}
	for rows.Next() {
		var cfg entities.SheetConfig
		var columns json.RawMessage
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.SheetID, &columns, &cfg.Active, &cfg.AddTrigger, &cfg.LastUpdated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(columns, &cfg.Columns); err != nil {
			return nil, fmt.Errorf("invalid columns json for config %s: %w", cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// GetActiveSheetConfigs returns only the configs the dispatcher should run.
func (r *ConfigRepository) GetActiveSheetConfigs(schemaName string) ([]entities.SheetConfig, error) {
	all, err := r.GetSheetConfigs(schemaName)
	if err != nil {
		return nil, err
	}
	active := []entities.SheetConfig{}
	for _, cfg := range all {
		if cfg.Active {
			active = append(active, cfg)
		}
	}
	return active, nil
}

// CreateSheetConfig inserts a new sheet config.
func (r *ConfigRepository) CreateSheetConfig(schemaName string, cfg *entities.SheetConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	columns, err := json.Marshal(cfg.Columns)
	if err != nil {
		return err
	}
	cfg.LastUpdated = time.Now()
	table := qualifyTable(schemaName, "sheet_configs")
	_, err = r.db.Exec(context.Background(), fmt.Sprintf(`
		INSERT INTO %s (id, name, sheet_id, columns, active, add_trigger, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, table), cfg.ID, cfg.Name, cfg.SheetID, columns, cfg.Active, cfg.AddTrigger, cfg.LastUpdated)
	return err
}

// UpdateSheetConfig replaces an existing config.
func (r *ConfigRepository) UpdateSheetConfig(schemaName string, cfg *entities.SheetConfig) error {
	columns, err := json.Marshal(cfg.Columns)
	if err != nil {
		return err
	}
	cfg.LastUpdated = time.Now()
	table := qualifyTable(schemaName, "sheet_configs")
	tag, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		UPDATE %s SET name=$1, sheet_id=$2, columns=$3, active=$4, add_trigger=$5, last_updated=$6 WHERE id=$7
	`, table), cfg.Name, cfg.SheetID, columns, cfg.Active, cfg.AddTrigger, cfg.LastUpdated, cfg.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sheet config not found")
	}
	return nil
}

// DeleteSheetConfig removes a config.
func (r *ConfigRepository) DeleteSheetConfig(schemaName, id string) error {
	table := qualifyTable(schemaName, "sheet_configs")
	_, err := r.db.Exec(context.Background(), fmt.Sprintf("DELETE FROM %s WHERE id=$1", table), id)
	return err
}

// ---------------- Settings ----------------

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSetting returns a setting value by key ("" when missing).
func (r *ConfigRepository) GetSetting(schemaName, key string) (string, error) {
	table := qualifyTable(schemaName, "settings")
	var value string
	err := r.db.QueryRow(context.Background(),
		fmt.Sprintf("SELECT value FROM %s WHERE key=$1", table), key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil // Not found is not strictly an error
		}
		return "", err
	}
	return value, nil
}

// SetSetting upserts a setting value.
func (r *ConfigRepository) SetSetting(schemaName, key, value string) error {
	table := qualifyTable(schemaName, "settings")
	_, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, table), key, value)
	return err
}

// GetAllSettings returns every setting for a tenant.
func (r *ConfigRepository) GetAllSettings(schemaName string) ([]Setting, error) {
	table := qualifyTable(schemaName, "settings")
	rows, err := r.db.Query(context.Background(),
		fmt.Sprintf("SELECT key, value, updated_at FROM %s", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := []Setting{}
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, nil
}
