package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"storefront/internal/model"
)

type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionStore{db: db, ttl: ttl}
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	var lastAccessed sql.NullTime
	err := scanner.Scan(
		&s.ID, &s.UserID, &s.SessionID, &s.DeviceInfo, &s.IPAddress, &s.UserAgent,
		&s.ExpiresAt, &s.IsActive, &lastAccessed, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAccessed.Valid {
		s.LastAccessedAt = &lastAccessed.Time
	}
	return &s, nil
}

const sessionCols = `id, user_id, session_id, device_info, ip_address, user_agent, expires_at, is_active, last_accessed_at, created_at`

// newSessionID returns a crypto-random opaque identifier.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Upsert creates a session for the device, or refreshes the existing active
// session for the same (user, device, user agent) slot with a new session
// identifier and extended expiry. The partial unique index on active device
// slots makes this a single atomic statement, so concurrent logins from the
// same device can never produce two active rows.
func (s *SessionStore) Upsert(userID int64, deviceInfo, ipAddress, userAgent string) (*model.Session, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	_, err = s.db.Exec(
		`INSERT INTO sessions (user_id, session_id, device_info, ip_address, user_agent, expires_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, device_info, user_agent) WHERE is_active = 1
		 DO UPDATE SET session_id = excluded.session_id,
		               ip_address = excluded.ip_address,
		               expires_at = excluded.expires_at,
		               last_accessed_at = excluded.last_accessed_at`,
		userID, sessionID, deviceInfo, ipAddress, userAgent, expiresAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// GetBySessionID returns the active, unexpired session for the identifier,
// or nil if there is none.
func (s *SessionStore) GetBySessionID(sessionID string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionCols+` FROM sessions WHERE session_id = ? AND is_active = 1 AND expires_at > datetime('now')`,
		sessionID,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListActiveByUserID returns the user's active, unexpired sessions for the
// device-management view.
func (s *SessionStore) ListActiveByUserID(userID int64) ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionCols+` FROM sessions WHERE user_id = ? AND is_active = 1 AND expires_at > datetime('now') ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Touch updates the last-accessed timestamp. Called on every authenticated
// request.
func (s *SessionStore) Touch(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET last_accessed_at = datetime('now') WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Deactivate marks the session inactive. Deactivating an already-inactive
// or unknown session is not an error.
func (s *SessionStore) Deactivate(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET is_active = 0 WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

// DeactivateAllForUser marks every active session for the user inactive and
// returns how many were affected.
func (s *SessionStore) DeactivateAllForUser(userID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions for user: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func (s *SessionStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
