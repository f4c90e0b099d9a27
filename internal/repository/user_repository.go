package repository

import (
	"context"

	"chatmimic_connect/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, password_hash, role, schema_name, is_active, wa_enabled,
	alert_bot_token, alert_chat_id, daily_limit, monthly_limit`

func scanUser(row pgx.Row) (*entities.User, error) {
	var user entities.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.SchemaName,
		&user.IsActive, &user.WAEnabled, &user.AlertBotToken, &user.AlertChatID,
		&user.DailyLimit, &user.MonthlyLimit)
	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Create(user *entities.User) error {
	return r.db.QueryRow(context.Background(),
		"INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3) RETURNING id",
		user.Username, user.PasswordHash, user.Role).Scan(&user.ID)
}

func (r *UserRepository) GetByUsername(username string) (*entities.User, error) {
	row := r.db.QueryRow(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE username = $1", username)
	return scanUser(row)
}

func (r *UserRepository) GetByID(id int) (*entities.User, error) {
	row := r.db.QueryRow(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

// List returns all tenant accounts (admin view).
func (r *UserRepository) List() ([]entities.User, error) {
	rows, err := r.db.Query(context.Background(),
		"SELECT "+userColumns+" FROM users ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []entities.User{}
	for rows.Next() {
		var u entities.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.SchemaName,
			&u.IsActive, &u.WAEnabled, &u.AlertBotToken, &u.AlertChatID,
			&u.DailyLimit, &u.MonthlyLimit); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// ListActive returns enabled tenants, used to restore WhatsApp sessions and
// alert bots on startup.
func (r *UserRepository) ListActive() ([]entities.User, error) {
	rows, err := r.db.Query(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE is_active = TRUE ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []entities.User{}
	for rows.Next() {
		var u entities.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.SchemaName,
			&u.IsActive, &u.WAEnabled, &u.AlertBotToken, &u.AlertChatID,
			&u.DailyLimit, &u.MonthlyLimit); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *UserRepository) UpdateSchemaName(userID int, schemaName string) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET schema_name=$1 WHERE id=$2", schemaName, userID)
	return err
}

func (r *UserRepository) UpdateStatus(userID int, isActive bool) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET is_active=$1 WHERE id=$2", isActive, userID)
	return err
}

func (r *UserRepository) UpdateWAEnabled(userID int, enabled bool) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET wa_enabled=$1 WHERE id=$2", enabled, userID)
	return err
}

func (r *UserRepository) UpdateLimits(userID, dailyLimit, monthlyLimit int) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET daily_limit=$1, monthly_limit=$2 WHERE id=$3", dailyLimit, monthlyLimit, userID)
	return err
}

func (r *UserRepository) UpdateAlertBotToken(userID int, token string) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET alert_bot_token=$1, alert_chat_id=0 WHERE id=$2", token, userID)
	return err
}

func (r *UserRepository) UpdateAlertChatID(userID int, chatID int64) error {
	_, err := r.db.Exec(context.Background(),
		"UPDATE users SET alert_chat_id=$1 WHERE id=$2", chatID, userID)
	return err
}
