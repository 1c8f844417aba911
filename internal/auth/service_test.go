package auth

import (
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/database"
	"storefront/internal/store"
)

// fakeMailer captures sent codes instead of delivering them.
type fakeMailer struct {
	lastCode  string
	lastTo    string
	welcomed  []string
	failSends bool
}

func (m *fakeMailer) SendTwoFactorCode(to, code string) error {
	if m.failSends {
		return errors.New("smtp down")
	}
	m.lastTo = to
	m.lastCode = code
	return nil
}

func (m *fakeMailer) SendVerificationCode(to, code string) error {
	if m.failSends {
		return errors.New("smtp down")
	}
	m.lastTo = to
	m.lastCode = code
	return nil
}

func (m *fakeMailer) SendWelcome(to, name string) error {
	m.welcomed = append(m.welcomed, to)
	return nil
}

func setupAuthTest(t *testing.T) (*Service, *fakeMailer, *store.UserStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	sessions := store.NewSessionStore(db, time.Hour)
	challenges := store.NewChallengeStore(db)
	verifications := store.NewVerificationStore(db)
	tokens := NewTokenManager("test-secret", time.Hour)
	mailer := &fakeMailer{}
	logger := slog.New(slog.DiscardHandler)

	svc := NewService(users, sessions, challenges, verifications, tokens, mailer, logger)
	return svc, mailer, users, db
}

func createTestUser(t *testing.T, users *store.UserStore, email, password string) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := users.Create(email, string(hash), "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func testDevice() DeviceContext {
	return DeviceContext{Fingerprint: "Chrome on Mac", IPAddress: "1.2.3.4", UserAgent: "Mozilla/5.0"}
}

func TestLoginSuccess(t *testing.T) {
	svc, _, users, _ := setupAuthTest(t)
	createTestUser(t, users, "alice@example.com", "secret123")

	result, err := svc.Login("alice@example.com", "secret123", testDevice())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.RequiresTwoFactor {
		t.Error("expected direct login without 2FA")
	}
	if result.Token == "" {
		t.Error("expected token")
	}
	if result.User == nil || result.User.Email != "alice@example.com" {
		t.Error("expected user info")
	}
}

func TestLoginInvalidCredentialsIndistinguishable(t *testing.T) {
	svc, _, users, _ := setupAuthTest(t)
	createTestUser(t, users, "alice@example.com", "secret123")

	_, wrongPass := svc.Login("alice@example.com", "wrong", testDevice())
	_, unknownUser := svc.Login("nobody@example.com", "whatever", testDevice())

	if !errors.Is(wrongPass, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", wrongPass)
	}
	if !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v, want ErrInvalidCredentials", unknownUser)
	}
}

func TestLoginLockout(t *testing.T) {
	svc, _, users, _ := setupAuthTest(t)
	createTestUser(t, users, "alice@example.com", "secret123")

	for i := 0; i < 5; i++ {
		if _, err := svc.Login("alice@example.com", "wrong", testDevice()); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v", i+1, err)
		}
	}

	// Correct password is refused while locked
	if _, err := svc.Login("alice@example.com", "secret123", testDevice()); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login: got %v, want ErrAccountLocked", err)
	}
}

func TestLoginTwoFactorFlow(t *testing.T) {
	svc, mailer, users, _ := setupAuthTest(t)
	id := createTestUser(t, users, "alice@example.com", "secret123")
	users.SetTwoFactorEnabled(id, true)

	result, err := svc.Login("alice@example.com", "secret123", testDevice())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.RequiresTwoFactor {
		t.Fatal("expected 2FA challenge")
	}
	if result.Token != "" {
		t.Error("expected no token before 2FA")
	}
	if result.SessionID == "" {
		t.Fatal("expected session id")
	}
	if mailer.lastCode == "" {
		t.Fatal("expected code to be mailed")
	}

	verified, err := svc.VerifyTwoFactor(result.SessionID, mailer.lastCode)
	if err != nil {
		t.Fatalf("verify 2fa: %v", err)
	}
	if verified.Token == "" {
		t.Error("expected token after 2FA")
	}

	// The code is single-use
	if _, err := svc.VerifyTwoFactor(result.SessionID, mailer.lastCode); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("code reuse: got %v, want ErrInvalidOrExpired", err)
	}
}

func TestLoginTwoFactorMailFailureStillChallenges(t *testing.T) {
	svc, mailer, users, _ := setupAuthTest(t)
	id := createTestUser(t, users, "alice@example.com", "secret123")
	users.SetTwoFactorEnabled(id, true)
	mailer.failSends = true

	result, err := svc.Login("alice@example.com", "secret123", testDevice())
	if err != nil {
		t.Fatalf("login with failing mailer: %v", err)
	}
	if !result.RequiresTwoFactor {
		t.Error("expected 2FA challenge despite mail failure")
	}
}

func TestVerifyTwoFactorUnknownSession(t *testing.T) {
	svc, _, _, _ := setupAuthTest(t)

	if _, err := svc.VerifyTwoFactor("no-such-session", "123456"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("got %v, want ErrInvalidSession", err)
	}
}

func TestTwoFactorToggle(t *testing.T) {
	svc, mailer, users, _ := setupAuthTest(t)
	id := createTestUser(t, users, "alice@example.com", "secret123")

	challengeID, err := svc.RequestTwoFactorToggle(id)
	if err != nil {
		t.Fatalf("request toggle: %v", err)
	}
	if challengeID == "" {
		t.Fatal("expected challenge id")
	}

	enabled, err := svc.ConfirmTwoFactorToggle(id, challengeID, mailer.lastCode)
	if err != nil {
		t.Fatalf("confirm toggle: %v", err)
	}
	if !enabled {
		t.Error("expected 2FA enabled")
	}

	u, _ := users.GetByID(id)
	if !u.TwoFactorEnabled {
		t.Error("expected flag persisted")
	}

	// Consumed challenge cannot flip the flag back
	if _, err := svc.ConfirmTwoFactorToggle(id, challengeID, mailer.lastCode); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("reused toggle code: got %v, want ErrInvalidOrExpired", err)
	}

	// A fresh challenge disables it again
	challengeID, _ = svc.RequestTwoFactorToggle(id)
	enabled, err = svc.ConfirmTwoFactorToggle(id, challengeID, mailer.lastCode)
	if err != nil {
		t.Fatalf("confirm second toggle: %v", err)
	}
	if enabled {
		t.Error("expected 2FA disabled")
	}
}

func TestConfirmToggleWrongCode(t *testing.T) {
	svc, mailer, users, _ := setupAuthTest(t)
	id := createTestUser(t, users, "alice@example.com", "secret123")

	challengeID, _ := svc.RequestTwoFactorToggle(id)
	wrong := "000000"
	if wrong == mailer.lastCode {
		wrong = "000001"
	}
	if _, err := svc.ConfirmTwoFactorToggle(id, challengeID, wrong); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("got %v, want ErrInvalidOrExpired", err)
	}

	u, _ := users.GetByID(id)
	if u.TwoFactorEnabled {
		t.Error("expected flag unchanged after failed confirm")
	}
}

func TestAuthenticateToken(t *testing.T) {
	svc, _, users, _ := setupAuthTest(t)
	id := createTestUser(t, users, "alice@example.com", "secret123")

	result, _ := svc.Login("alice@example.com", "secret123", testDevice())

	p, err := svc.AuthenticateToken(result.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != id {
		t.Errorf("user id = %d, want %d", p.UserID, id)
	}
	if p.Email != "alice@example.com" {
		t.Errorf("email = %q", p.Email)
	}
}

func TestAuthenticateTokenGarbage(t *testing.T) {
	svc, _, _, _ := setupAuthTest(t)

	if _, err := svc.AuthenticateToken("not.a.token"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("got %v, want ErrInvalidSession", err)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc, _, users, _ := setupAuthTest(t)
	createTestUser(t, users, "alice@example.com", "secret123")

	result, _ := svc.Login("alice@example.com", "secret123", testDevice())
	p, _ := svc.AuthenticateToken(result.Token)

	if err := svc.Logout(p.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Token still cryptographically valid but its session is dead
	if _, err := svc.AuthenticateToken(result.Token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("post-logout auth: got %v, want ErrInvalidSession", err)
	}
}

func TestLogoutAllDevices(t *testing.T) {
	svc, _, users, _ := setupAuthTest(t)
	id := createTestUser(t, users, "alice@example.com", "secret123")

	laptop, _ := svc.Login("alice@example.com", "secret123", testDevice())
	phone, _ := svc.Login("alice@example.com", "secret123", DeviceContext{
		Fingerprint: "Safari on iPhone", IPAddress: "1.2.3.4", UserAgent: "Mobile Safari",
	})

	count, err := svc.LogoutAllDevices(id)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if count != 2 {
		t.Errorf("deactivated = %d, want 2", count)
	}

	for _, token := range []string{laptop.Token, phone.Token} {
		if _, err := svc.AuthenticateToken(token); err == nil {
			t.Error("expected token rejected after logout-all")
		}
	}
}

func TestRepeatLoginReusesDeviceSlot(t *testing.T) {
	svc, _, users, _ := setupAuthTest(t)
	id := createTestUser(t, users, "alice@example.com", "secret123")

	first, _ := svc.Login("alice@example.com", "secret123", testDevice())
	second, _ := svc.Login("alice@example.com", "secret123", testDevice())

	sessions, err := svc.ActiveSessions(id)
	if err != nil {
		t.Fatalf("active sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(sessions))
	}

	// Only the newest token resolves
	if _, err := svc.AuthenticateToken(first.Token); err == nil {
		t.Error("expected older device token to be dead")
	}
	if _, err := svc.AuthenticateToken(second.Token); err != nil {
		t.Errorf("newest token: %v", err)
	}
}

func TestSignupFlow(t *testing.T) {
	svc, mailer, _, _ := setupAuthTest(t)

	if err := svc.RequestEmailVerification("new@example.com"); err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if mailer.lastCode == "" {
		t.Fatal("expected verification code mailed")
	}

	if err := svc.VerifyEmail("new@example.com", mailer.lastCode); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	user, err := svc.Signup("new@example.com", "secret123", "Newbie")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Errorf("email = %q", user.Email)
	}
	if len(mailer.welcomed) != 1 {
		t.Error("expected welcome email")
	}

	// Created credentials work
	if _, err := svc.Login("new@example.com", "secret123", testDevice()); err != nil {
		t.Errorf("login after signup: %v", err)
	}

	// Same email cannot sign up twice
	if _, err := svc.Signup("new@example.com", "other", "Dup"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate signup: got %v, want ErrUserExists", err)
	}
}

func TestSignupRequiresVerifiedEmail(t *testing.T) {
	svc, _, _, _ := setupAuthTest(t)

	if _, err := svc.Signup("new@example.com", "secret123", "Newbie"); !errors.Is(err, ErrEmailNotVerified) {
		t.Errorf("got %v, want ErrEmailNotVerified", err)
	}

	// Requested but unverified is still refused
	svc.RequestEmailVerification("new@example.com")
	if _, err := svc.Signup("new@example.com", "secret123", "Newbie"); !errors.Is(err, ErrEmailNotVerified) {
		t.Errorf("got %v, want ErrEmailNotVerified", err)
	}
}

func TestVerifyEmailErrors(t *testing.T) {
	svc, mailer, _, db := setupAuthTest(t)

	if err := svc.VerifyEmail("new@example.com", "123456"); !errors.Is(err, ErrOTPNotGenerated) {
		t.Errorf("no code: got %v, want ErrOTPNotGenerated", err)
	}

	svc.RequestEmailVerification("new@example.com")
	wrong := "000000"
	if wrong == mailer.lastCode {
		wrong = "000001"
	}
	if err := svc.VerifyEmail("new@example.com", wrong); !errors.Is(err, ErrOTPMismatch) {
		t.Errorf("wrong code: got %v, want ErrOTPMismatch", err)
	}

	if _, err := db.Exec(`UPDATE email_verifications SET expires_at = datetime('now', '-1 minute')`); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := svc.VerifyEmail("new@example.com", mailer.lastCode); !errors.Is(err, ErrOTPExpired) {
		t.Errorf("expired code: got %v, want ErrOTPExpired", err)
	}
}
