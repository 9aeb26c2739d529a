package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"wbtrack-rest-api/internal/model"
)

// SQLUserRepository implements UserRepository on any supported dialect.
type SQLUserRepository struct {
	db *DB
}

var _ UserRepository = (*SQLUserRepository)(nil)

// NewSQLUserRepository creates a new user repository.
func NewSQLUserRepository(db *DB) *SQLUserRepository {
	return &SQLUserRepository{db: db}
}

const userColumns = `user_id, username, hashed_password, first_name, last_name, language, is_bot, premium_status, created_at`

// Create inserts a user and returns it with its id and creation time set.
func (r *SQLUserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	created := *user
	created.CreatedAt = time.Now().UTC()

	args := []any{
		created.Username, created.PasswordHash, created.FirstName, created.LastName,
		created.Language, created.IsBot, created.PremiumStatus, created.CreatedAt,
	}
	columns := `username, hashed_password, first_name, last_name, language, is_bot, premium_status, created_at`
	values := `?, ?, ?, ?, ?, ?, ?, ?`
	if created.ID != 0 {
		columns = "user_id, " + columns
		values = "?, " + values
		args = append([]any{created.ID}, args...)
	}

	query := `INSERT INTO users (` + columns + `) VALUES (` + values + `)`
	id, err := r.db.insertID(ctx, r.db, "user_id", query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if created.ID == 0 {
		created.ID = id
	}

	log.Printf("[UserRepository] Created user_id=%d username=%s", created.ID, created.Username)
	return &created, nil
}

// GetByID finds a user by subject id.
func (r *SQLUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE user_id = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsername finds a user by username.
func (r *SQLUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE username = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// UpdatePassword replaces the stored password digest.
func (r *SQLUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := r.db.Rebind(`UPDATE users SET hashed_password = ? WHERE user_id = ?`)

	res, err := r.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *SQLUserRepository) scanOne(row *sql.Row) (*model.User, error) {
	var u model.User
	var firstName, lastName, lang, premium sql.NullString

	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &firstName, &lastName, &lang, &u.IsBot, &premium, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.FirstName = nullString(firstName)
	u.LastName = nullString(lastName)
	u.Language = nullString(lang)
	u.PremiumStatus = nullString(premium)
	return &u, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
