// Package payment wraps the Stripe API behind a small gateway capability
// that is injected at composition time.
package payment

import (
	"fmt"
	"math"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// Intent is the client-facing projection of a processor payment intent.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// Result reports the outcome of a confirm or refund call. A processor-side
// failure status is a failed Result, not an error.
type Result struct {
	Succeeded     bool
	TransactionID string
	Reason        string
}

// Gateway is the payment capability the order orchestrator depends on.
type Gateway interface {
	CreateIntent(amount float64) (*Intent, error)
	Confirm(intentID string) (*Result, error)
	Refund(intentID string, amount float64) (*Result, error)
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	return &Client{cfg: cfg}
}

// toMinorUnits converts a whole-unit amount to the processor's smallest
// currency unit.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateIntent creates a payment intent for the amount and returns its
// client-facing reference.
func (c *Client) CreateIntent(amount float64) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(amount)),
		Currency:           stripe.String(c.cfg.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}, nil
}

// Confirm confirms the intent. Processor errors and non-succeeded statuses
// both come back as a failed Result so the caller can record a failed
// payment instead of propagating an exception.
func (c *Client) Confirm(intentID string) (*Result, error) {
	pi, err := paymentintent.Confirm(intentID, &stripe.PaymentIntentConfirmParams{})
	if err != nil {
		return &Result{Succeeded: false, Reason: err.Error()}, nil
	}
	res := &Result{
		Succeeded:     pi.Status == stripe.PaymentIntentStatusSucceeded,
		TransactionID: pi.ID,
	}
	if !res.Succeeded {
		res.Reason = fmt.Sprintf("payment %s", pi.Status)
	}
	return res, nil
}

// Refund refunds the intent, in full when amount is zero.
func (c *Client) Refund(intentID string, amount float64) (*Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	if amount > 0 {
		params.Amount = stripe.Int64(toMinorUnits(amount))
	}
	r, err := refund.New(params)
	if err != nil {
		return &Result{Succeeded: false, Reason: err.Error()}, nil
	}
	return &Result{
		Succeeded:     r.Status == stripe.RefundStatusSucceeded,
		TransactionID: r.ID,
	}, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
