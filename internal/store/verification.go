package store

import (
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/model"
)

const verificationTTL = 10 * time.Minute

// VerificationStore persists pre-signup email verification codes, keyed by
// email since no user record exists yet.
type VerificationStore struct {
	db *sql.DB
}

func NewVerificationStore(db *sql.DB) *VerificationStore {
	return &VerificationStore{db: db}
}

func scanVerification(scanner interface{ Scan(...any) error }) (*model.EmailVerification, error) {
	var v model.EmailVerification
	err := scanner.Scan(&v.ID, &v.Email, &v.OTP, &v.ExpiresAt, &v.Verified, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

const verificationCols = `id, email, otp, expires_at, verified, created_at`

// Upsert issues a fresh code for the email, replacing any previous one and
// resetting the verified flag.
func (s *VerificationStore) Upsert(email string) (*model.EmailVerification, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(verificationTTL)

	_, err = s.db.Exec(
		`INSERT INTO email_verifications (email, otp, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET otp = excluded.otp, expires_at = excluded.expires_at, verified = 0`,
		email, code, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert verification: %w", err)
	}
	return s.GetByEmail(email)
}

func (s *VerificationStore) GetByEmail(email string) (*model.EmailVerification, error) {
	row := s.db.QueryRow(`SELECT `+verificationCols+` FROM email_verifications WHERE email = ?`, email)
	v, err := scanVerification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return v, nil
}

func (s *VerificationStore) MarkVerified(email string) error {
	_, err := s.db.Exec(`UPDATE email_verifications SET verified = 1 WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("mark verification: %w", err)
	}
	return nil
}

// DeleteExpired removes unverified codes past their expiry. Verified rows
// are kept so signup can still see the verification.
func (s *VerificationStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM email_verifications WHERE verified = 0 AND expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired verifications: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
