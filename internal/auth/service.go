package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/model"
	"storefront/internal/store"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases must stay indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidSession     = errors.New("invalid session")
	ErrInvalidOrExpired   = errors.New("invalid or expired otp")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrUserExists         = errors.New("user already exists")
	ErrOTPNotGenerated    = errors.New("otp not generated")
	ErrOTPMismatch        = errors.New("invalid otp")
	ErrOTPExpired         = errors.New("otp expired")
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
	bcryptCost       = 10
)

// Mailer delivers out-of-band codes. Failures are logged, never surfaced to
// the caller, so a flaky email provider cannot block logins.
type Mailer interface {
	SendTwoFactorCode(to, code string) error
	SendVerificationCode(to, code string) error
	SendWelcome(to, name string) error
}

// DeviceContext identifies the device a login originates from. It is passed
// by value through the call chain; the (Fingerprint, UserAgent) pair names
// the session slot a repeat login reuses.
type DeviceContext struct {
	Fingerprint string
	IPAddress   string
	UserAgent   string
}

type UserInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type LoginResult struct {
	RequiresTwoFactor bool      `json:"requiresTwoFactor"`
	SessionID         string    `json:"sessionId,omitempty"`
	Token             string    `json:"token,omitempty"`
	User              *UserInfo `json:"user,omitempty"`
}

type Service struct {
	users         *store.UserStore
	sessions      *store.SessionStore
	challenges    *store.ChallengeStore
	verifications *store.VerificationStore
	tokens        *TokenManager
	mailer        Mailer
	logger        *slog.Logger
}

func NewService(
	users *store.UserStore,
	sessions *store.SessionStore,
	challenges *store.ChallengeStore,
	verifications *store.VerificationStore,
	tokens *TokenManager,
	mailer Mailer,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:         users,
		sessions:      sessions,
		challenges:    challenges,
		verifications: verifications,
		tokens:        tokens,
		mailer:        mailer,
		logger:        logger,
	}
}

func userInfo(u *model.User) *UserInfo {
	return &UserInfo{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Login authenticates credentials and establishes a device session. When
// the user has two-factor enabled it returns the session identifier and
// sends a code instead of issuing a token.
func (s *Service) Login(email, password string, device DeviceContext) (*LoginResult, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now().UTC()) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		attempts, err := s.users.IncrementLoginAttempts(user.ID)
		if err != nil {
			return nil, err
		}
		if attempts >= maxLoginAttempts {
			if err := s.users.SetLockout(user.ID, time.Now().UTC().Add(lockoutDuration)); err != nil {
				return nil, err
			}
		}
		return nil, ErrInvalidCredentials
	}

	sess, err := s.sessions.Upsert(user.ID, device.Fingerprint, device.IPAddress, device.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.users.RecordLogin(user.ID); err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		challenge, err := s.challenges.Create(user.ID, sess.SessionID, model.ChallengePurposeLogin)
		if err != nil {
			return nil, err
		}
		if err := s.mailer.SendTwoFactorCode(user.Email, challenge.OTP); err != nil {
			s.logger.Error("send two-factor code", "error", err)
		}
		return &LoginResult{RequiresTwoFactor: true, SessionID: sess.SessionID}, nil
	}

	token, err := s.tokens.Issue(user.ID, sess.SessionID, user.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: userInfo(user)}, nil
}

// VerifyTwoFactor consumes the pending login challenge for the session and
// issues a token. A code is single-use: a second call with the same code
// fails even if it arrives concurrently with the first.
func (s *Service) VerifyTwoFactor(sessionID, code string) (*LoginResult, error) {
	sess, err := s.sessions.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrInvalidSession
	}

	ok, err := s.challenges.Verify(sess.UserID, sessionID, code, model.ChallengePurposeLogin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOrExpired
	}

	user, err := s.users.GetByID(sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidSession
	}

	token, err := s.tokens.Issue(user.ID, sessionID, user.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: userInfo(user)}, nil
}

// RequestTwoFactorToggle issues a toggle challenge independent of any login
// session and mails the code. The returned identifier names the challenge
// for the confirmation call.
func (s *Service) RequestTwoFactorToggle(userID int64) (string, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	challengeID := uuid.NewString()
	challenge, err := s.challenges.Create(userID, challengeID, model.ChallengePurposeToggle)
	if err != nil {
		return "", err
	}
	if err := s.mailer.SendTwoFactorCode(user.Email, challenge.OTP); err != nil {
		s.logger.Error("send toggle code", "error", err)
	}
	return challengeID, nil
}

// ConfirmTwoFactorToggle verifies the code against the persisted challenge
// and flips the user's two-factor flag. The state never changes without a
// consumed challenge.
func (s *Service) ConfirmTwoFactorToggle(userID int64, sessionID, code string) (bool, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, ErrUserNotFound
	}

	ok, err := s.challenges.Verify(userID, sessionID, code, model.ChallengePurposeToggle)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidOrExpired
	}

	enabled := !user.TwoFactorEnabled
	if err := s.users.SetTwoFactorEnabled(userID, enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// Logout deactivates the session. Idempotent.
func (s *Service) Logout(sessionID string) error {
	return s.sessions.Deactivate(sessionID)
}

// LogoutAllDevices deactivates every active session the user owns.
func (s *Service) LogoutAllDevices(userID int64) (int64, error) {
	return s.sessions.DeactivateAllForUser(userID)
}

func (s *Service) ActiveSessions(userID int64) ([]model.Session, error) {
	return s.sessions.ListActiveByUserID(userID)
}

// AuthenticateToken validates a bearer token and the liveness of its
// session, touches last-accessed, and returns the principal. A token for a
// deactivated session is rejected even before its own expiry.
func (s *Service) AuthenticateToken(token string) (Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, ErrInvalidSession
	}

	sess, err := s.sessions.GetBySessionID(claims.SessionID)
	if err != nil {
		return Principal{}, err
	}
	if sess == nil || sess.UserID != claims.UserID {
		return Principal{}, ErrInvalidSession
	}

	if err := s.sessions.Touch(claims.SessionID); err != nil {
		s.logger.Error("touch session", "error", err)
	}

	return Principal{UserID: claims.UserID, Email: claims.Email, SessionID: claims.SessionID}, nil
}

// RequestEmailVerification issues a signup verification code for the email.
func (s *Service) RequestEmailVerification(email string) error {
	v, err := s.verifications.Upsert(email)
	if err != nil {
		return err
	}
	if err := s.mailer.SendVerificationCode(email, v.OTP); err != nil {
		s.logger.Error("send verification code", "error", err)
	}
	return nil
}

// VerifyEmail checks the signup code. The failure kinds are distinguishable
// here; this path gates account creation, not an existing account's 2FA.
func (s *Service) VerifyEmail(email, code string) error {
	v, err := s.verifications.GetByEmail(email)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrOTPNotGenerated
	}
	if v.OTP != code {
		return ErrOTPMismatch
	}
	if v.ExpiresAt.Before(time.Now().UTC()) {
		return ErrOTPExpired
	}
	return s.verifications.MarkVerified(email)
}

// Signup creates the user once the email has been verified.
func (s *Service) Signup(email, password, name string) (*UserInfo, error) {
	v, err := s.verifications.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if v == nil || !v.Verified {
		return nil, ErrEmailNotVerified
	}

	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(email, string(hash), name)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendWelcome(email, name); err != nil {
		s.logger.Error("send welcome email", "error", err)
	}
	return userInfo(user), nil
}
