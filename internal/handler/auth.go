package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/middleware"
)

type AuthHandler struct {
	svc    *auth.Service
	logger *slog.Logger
}

func NewAuthHandler(svc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// deviceContext builds the typed device identity from request headers.
func deviceContext(r *http.Request) auth.DeviceContext {
	fingerprint := r.Header.Get("X-Device-Info")
	if fingerprint == "" {
		fingerprint = "Unknown Device"
	}
	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = "Unknown User Agent"
	}
	return auth.DeviceContext{
		Fingerprint: fingerprint,
		IPAddress:   middleware.RealIP(r),
		UserAgent:   userAgent,
	}
}

func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.svc.RequestEmailVerification(req.Email); err != nil {
		h.logger.Error("request verification", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	err := h.svc.VerifyEmail(req.Email, req.OTP)
	switch {
	case errors.Is(err, auth.ErrOTPNotGenerated):
		writeError(w, http.StatusBadRequest, "OTP not generated")
	case errors.Is(err, auth.ErrOTPMismatch):
		writeError(w, http.StatusBadRequest, "Invalid OTP")
	case errors.Is(err, auth.ErrOTPExpired):
		writeError(w, http.StatusBadRequest, "OTP expired")
	case err != nil:
		h.logger.Error("verify email", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
	}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.svc.Signup(req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, auth.ErrEmailNotVerified):
		writeError(w, http.StatusBadRequest, "Email not verified")
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusBadRequest, "User already exists")
	case err != nil:
		h.logger.Error("signup", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"message": "User created", "user": user})
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.svc.Login(req.Email, req.Password, deviceContext(r))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountLocked):
		// Locked accounts get the same response as bad credentials so the
		// endpoint stays a non-oracle for account state.
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case err != nil:
		h.logger.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		OTP       string `json:"otp"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "sessionId and otp are required")
		return
	}

	result, err := h.svc.VerifyTwoFactor(req.SessionID, req.OTP)
	switch {
	case errors.Is(err, auth.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "Invalid session")
	case errors.Is(err, auth.ErrInvalidOrExpired):
		writeError(w, http.StatusUnauthorized, "Invalid or expired OTP")
	case err != nil:
		h.logger.Error("verify two-factor", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *AuthHandler) RequestTwoFactorToggle(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.svc.RequestTwoFactorToggle(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("request two-factor toggle", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": sessionID,
		"message":   "2FA code sent to your email",
	})
}

func (h *AuthHandler) ConfirmTwoFactorToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		OTP       string `json:"otp"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "sessionId and otp are required")
		return
	}

	enabled, err := h.svc.ConfirmTwoFactorToggle(auth.UserID(r.Context()), req.SessionID, req.OTP)
	switch {
	case errors.Is(err, auth.ErrInvalidOrExpired):
		writeError(w, http.StatusUnauthorized, "Invalid or expired OTP")
	case err != nil:
		h.logger.Error("confirm two-factor toggle", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"twoFactorEnabled": enabled})
	}
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(auth.SessionID(r.Context())); err != nil {
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.LogoutAllDevices(auth.UserID(r.Context())); err != nil {
		h.logger.Error("logout all", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out from all devices"})
}

func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ActiveSessions(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// RevokeSession logs out a specific device by its session identifier.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if err := h.svc.Logout(sessionID); err != nil {
		h.logger.Error("revoke session", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
