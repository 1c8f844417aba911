package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/email"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/webhook"
)

type Server struct {
	db                *sql.DB
	userStore         *store.UserStore
	sessionStore      *store.SessionStore
	challengeStore    *store.ChallengeStore
	verificationStore *store.VerificationStore
	cartStore         *store.CartStore
	orderStore        *store.OrderStore
	webhookEventStore *store.WebhookEventStore
	authSvc           *auth.Service
	orderSvc          *order.Service
	authH             *handler.AuthHandler
	orderH            *handler.OrderHandler
	webhookH          *handler.WebhookHandler
	rateLimiter       *middleware.RateLimiter
	logger            *slog.Logger
}

// New wires every store, service, and handler. External capabilities (the
// payment gateway, the mailer) are constructed here once and injected, never
// created per request.
func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db, cfg.Auth.SessionTTL)
	challengeStore := store.NewChallengeStore(db)
	verificationStore := store.NewVerificationStore(db)
	cartStore := store.NewCartStore(db)
	orderStore := store.NewOrderStore(db)
	webhookEventStore := store.NewWebhookEventStore(db)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	mailer := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromEmail)
	gateway := payment.NewClient(payment.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
	})

	authSvc := auth.NewService(
		userStore, sessionStore, challengeStore, verificationStore,
		tokens, mailer, logger.With("component", "auth"),
	)
	orderSvc := order.NewService(orderStore, cartStore, gateway, logger.With("component", "order"))
	reconciler := webhook.NewReconciler(webhookEventStore, orderStore, gateway, logger.With("component", "webhook"))

	return &Server{
		db:                db,
		userStore:         userStore,
		sessionStore:      sessionStore,
		challengeStore:    challengeStore,
		verificationStore: verificationStore,
		cartStore:         cartStore,
		orderStore:        orderStore,
		webhookEventStore: webhookEventStore,
		authSvc:           authSvc,
		orderSvc:          orderSvc,
		authH:             handler.NewAuthHandler(authSvc, logger.With("component", "auth")),
		orderH:            handler.NewOrderHandler(orderSvc, logger.With("component", "order")),
		webhookH:          handler.NewWebhookHandler(reconciler, logger.With("component", "webhook")),
		rateLimiter:       middleware.NewRateLimiter(),
		logger:            logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// ChallengeStore returns the challenge store for cleanup tasks.
func (s *Server) ChallengeStore() *store.ChallengeStore {
	return s.challengeStore
}

// VerificationStore returns the verification store for cleanup tasks.
func (s *Server) VerificationStore() *store.VerificationStore {
	return s.verificationStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)

	// Public auth routes, rate-limited by client IP
	mux.Handle("POST /auth/request-verification", s.rateLimited(s.authH.RequestVerification))
	mux.Handle("POST /auth/verify-email", s.rateLimited(s.authH.VerifyEmail))
	mux.Handle("POST /auth/signup", s.rateLimited(s.authH.Signup))
	mux.Handle("POST /auth/login", s.rateLimited(s.authH.Login))
	mux.Handle("POST /auth/verify-2fa", s.rateLimited(s.authH.VerifyTwoFactor))

	// Stripe webhook (public, authenticated by signature)
	mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleStripeWebhook)

	// Authenticated routes
	authMw := middleware.RequireAuth(s.authSvc)
	protected := func(h http.HandlerFunc) http.Handler {
		return authMw(http.HandlerFunc(h))
	}

	mux.Handle("POST /auth/request-2fa-toggle", protected(s.authH.RequestTwoFactorToggle))
	mux.Handle("POST /auth/confirm-2fa-toggle", protected(s.authH.ConfirmTwoFactorToggle))
	mux.Handle("POST /auth/logout", protected(s.authH.Logout))
	mux.Handle("POST /auth/logout-all", protected(s.authH.LogoutAll))
	mux.Handle("GET /auth/sessions", protected(s.authH.ListSessions))
	mux.Handle("DELETE /auth/sessions/{sessionId}", protected(s.authH.RevokeSession))

	mux.Handle("POST /user/orders", protected(s.orderH.CreateOrder))
	mux.Handle("GET /user/orders", protected(s.orderH.ListOrders))
	mux.Handle("POST /user/orders/payment-intent", protected(s.orderH.CreatePaymentIntent))
	mux.Handle("GET /user/orders/{orderId}", protected(s.orderH.GetOrder))
	mux.Handle("POST /user/orders/{orderId}/payment", protected(s.orderH.ProcessPayment))
	mux.Handle("POST /user/orders/{orderId}/cancel", protected(s.orderH.CancelOrder))
	mux.Handle("PATCH /user/orders/{orderId}/tracking", protected(s.orderH.AddTracking))

	return middleware.RequestLogger(s.logger)(mux)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)(http.HandlerFunc(h))
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
