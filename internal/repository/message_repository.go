package repository

import (
	"context"
	"fmt"
	"time"

	"chatmimic_connect/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository stores chat messages per tenant. Messages are immutable
// once written.
type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert stores a message. Duplicate IDs (listener re-fires) are ignored.
func (r *MessageRepository) Insert(schemaName string, msg entities.Message) error {
	table := qualifyTable(schemaName, "messages")
	_, err := r.db.Exec(context.Background(), fmt.Sprintf(`
		INSERT INTO %s (id, chat_phone, content, sender, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, table), msg.ID, msg.ChatPhone, msg.Content, msg.Sender, msg.Timestamp)
	return err
}

// ListByChat returns a chat's messages ordered by timestamp ascending.
func (r *MessageRepository) ListByChat(schemaName, phone string, limit int) ([]entities.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	table := qualifyTable(schemaName, "messages")
	rows, err := r.db.Query(context.Background(), fmt.Sprintf(`
		SELECT id, chat_phone, content, sender, timestamp FROM %s
		WHERE chat_phone=$1 ORDER BY timestamp ASC LIMIT $2
	`, table), phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []entities.Message{}
	for rows.Next() {
		var m entities.Message
		if err := rows.Scan(&m.ID, &m.ChatPhone, &m.Content, &m.Sender, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// CountByChat returns how many messages a chat holds.
func (r *MessageRepository) CountByChat(schemaName, phone string) (int, error) {
	table := qualifyTable(schemaName, "messages")
	var n int
	err := r.db.QueryRow(context.Background(),
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE chat_phone=$1", table), phone).Scan(&n)
	return n, err
}

// CountSince returns the number of messages received after the given time.
func (r *MessageRepository) CountSince(schemaName string, since time.Time) (int, error) {
	table := qualifyTable(schemaName, "messages")
	var n int
	err := r.db.QueryRow(context.Background(),
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE timestamp >= $1", table), since).Scan(&n)
	return n, err
}
