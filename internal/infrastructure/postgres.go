package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	// Auto-migrate public schema
	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

// Migrate creates the shared (public schema) tables. Tenant tables live in
// per-user schemas and are created by the TenantManager at registration.
func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	// Users Table (tenant accounts)
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'user',
			schema_name VARCHAR(64) DEFAULT '',
			is_active BOOLEAN DEFAULT TRUE,
			wa_enabled BOOLEAN DEFAULT TRUE,
			alert_bot_token VARCHAR(255) DEFAULT '',
			alert_chat_id BIGINT DEFAULT 0,
			daily_limit INT DEFAULT 0,
			monthly_limit INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	// Columns added after the first release
	p.Pool.Exec(ctx, "ALTER TABLE users ADD COLUMN IF NOT EXISTS alert_bot_token VARCHAR(255) DEFAULT '';")
	p.Pool.Exec(ctx, "ALTER TABLE users ADD COLUMN IF NOT EXISTS alert_chat_id BIGINT DEFAULT 0;")

	// Per-user daily usage counters (shared table, keyed by user id)
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS message_usage (
			user_id INT NOT NULL,
			date DATE NOT NULL,
			messages_sent INT DEFAULT 0,
			messages_received INT DEFAULT 0,
			PRIMARY KEY (user_id, date)
		);
	`)
	if err != nil {
		return fmt.Errorf("create message_usage table: %w", err)
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
