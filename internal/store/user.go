package store

import (
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var lastLogin, lockedUntil sql.NullTime
	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.TwoFactorEnabled,
		&lastLogin, &u.LoginAttempts, &lockedUntil, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	return &u, nil
}

const userCols = `id, email, password_hash, name, two_factor_enabled, last_login_at, login_attempts, locked_until, created_at, updated_at`

func (s *UserStore) Create(email, passwordHash, name string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, password_hash, name) VALUES (?, ?, ?)`,
		email, passwordHash, name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// RecordLogin stamps a successful login and resets lockout counters.
func (s *UserStore) RecordLogin(id int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET last_login_at = datetime('now'), login_attempts = 0, locked_until = NULL, updated_at = datetime('now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// IncrementLoginAttempts bumps the failed-attempt counter and returns the
// new value.
func (s *UserStore) IncrementLoginAttempts(id int64) (int, error) {
	_, err := s.db.Exec(
		`UPDATE users SET login_attempts = login_attempts + 1, updated_at = datetime('now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("increment login attempts: %w", err)
	}

	var attempts int
	err = s.db.QueryRow(`SELECT login_attempts FROM users WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("read login attempts: %w", err)
	}
	return attempts, nil
}

func (s *UserStore) SetLockout(id int64, until time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET locked_until = ?, updated_at = datetime('now') WHERE id = ?`,
		until.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set lockout: %w", err)
	}
	return nil
}

func (s *UserStore) SetTwoFactorEnabled(id int64, enabled bool) error {
	_, err := s.db.Exec(
		`UPDATE users SET two_factor_enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		enabled, id,
	)
	if err != nil {
		return fmt.Errorf("set two factor enabled: %w", err)
	}
	return nil
}
