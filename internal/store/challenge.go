package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"storefront/internal/model"
)

// Challenge lifetime matches the delivery email copy.
const challengeTTL = 10 * time.Minute

type ChallengeStore struct {
	db *sql.DB
}

func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func scanChallenge(scanner interface{ Scan(...any) error }) (*model.TwoFactorChallenge, error) {
	var c model.TwoFactorChallenge
	err := scanner.Scan(
		&c.ID, &c.UserID, &c.OTP, &c.Purpose, &c.SessionID,
		&c.ExpiresAt, &c.Verified, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const challengeCols = `id, user_id, otp, purpose, session_id, expires_at, verified, created_at`

// generateCode returns a 6-digit numeric code (100000-999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create issues a fresh challenge for the user and session with a 10-minute
// expiry. Any pending challenge for the same user and purpose is discarded
// first, so at most one code per purpose is live at a time.
func (s *ChallengeStore) Create(userID int64, sessionID, purpose string) (*model.TwoFactorChallenge, error) {
	_, err := s.db.Exec(
		`DELETE FROM two_factor_challenges WHERE user_id = ? AND purpose = ? AND verified = 0`,
		userID, purpose,
	)
	if err != nil {
		return nil, fmt.Errorf("discard pending challenges: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(challengeTTL)

	result, err := s.db.Exec(
		`INSERT INTO two_factor_challenges (user_id, otp, purpose, session_id, expires_at) VALUES (?, ?, ?, ?, ?)`,
		userID, code, purpose, sessionID, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert challenge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+challengeCols+` FROM two_factor_challenges WHERE id = ?`, id)
	return scanChallenge(row)
}

// Verify atomically consumes the matching unverified, unexpired challenge.
// It reports whether a challenge was consumed; a second call with the same
// code always reports false. The single conditional UPDATE is what keeps
// concurrent verification attempts from both succeeding.
func (s *ChallengeStore) Verify(userID int64, sessionID, code, purpose string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE two_factor_challenges SET verified = 1
		 WHERE user_id = ? AND session_id = ? AND otp = ? AND purpose = ?
		   AND verified = 0 AND expires_at > datetime('now')`,
		userID, sessionID, code, purpose,
	)
	if err != nil {
		return false, fmt.Errorf("verify challenge: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows == 1, nil
}

// GetPending returns the unverified, unexpired challenge for the user and
// session, or nil.
func (s *ChallengeStore) GetPending(userID int64, sessionID string) (*model.TwoFactorChallenge, error) {
	row := s.db.QueryRow(
		`SELECT `+challengeCols+` FROM two_factor_challenges
		 WHERE user_id = ? AND session_id = ? AND verified = 0 AND expires_at > datetime('now')`,
		userID, sessionID,
	)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending challenge: %w", err)
	}
	return c, nil
}

func (s *ChallengeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM two_factor_challenges WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
