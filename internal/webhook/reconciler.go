// Package webhook reconciles asynchronous payment events from Stripe
// against local order state, durably and idempotently.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"storefront/internal/model"
	"storefront/internal/store"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// EventVerifier authenticates a raw delivery and parses it into an event.
// Satisfied by the payment gateway client, which owns the webhook secret.
type EventVerifier interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type Reconciler struct {
	events   *store.WebhookEventStore
	orders   *store.OrderStore
	verifier EventVerifier
	logger   *slog.Logger
}

func NewReconciler(events *store.WebhookEventStore, orders *store.OrderStore, verifier EventVerifier, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		events:   events,
		orders:   orders,
		verifier: verifier,
		logger:   logger,
	}
}

// HandleEvent verifies, logs, and applies one delivery. The ledger insert
// happens before any side effect so a crash mid-dispatch leaves an
// auditable unprocessed row; a redelivery of such a row runs dispatch again,
// and only an already-processed event id is acknowledged without reapplying
// anything. A dispatch error is recorded on the row and returned so the
// processor's retry mechanism redelivers.
func (r *Reconciler) HandleEvent(payload []byte, sigHeader string) error {
	event, err := r.verifier.ConstructWebhookEvent(payload, sigHeader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	// Events in scope all carry a payment intent object; other types may
	// not, in which case the ledger row simply has no intent id.
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		pi = stripe.PaymentIntent{}
	}

	var orderID *int64
	if order, err := r.orders.GetByPaymentIntentID(pi.ID); err == nil && order != nil {
		orderID = &order.ID
	}

	inserted, err := r.events.Insert(event.ID, string(event.Type), pi.ID, string(pi.Status), orderID, event.Data.Raw)
	if err != nil {
		return fmt.Errorf("log webhook event: %w", err)
	}
	if !inserted {
		// An existing row is only a true duplicate once its dispatch has
		// completed. A row left unprocessed by a crash or dispatch failure
		// must be reprocessable on redelivery.
		prior, err := r.events.GetByEventID(event.ID)
		if err != nil {
			return fmt.Errorf("load webhook event: %w", err)
		}
		if prior != nil && prior.Processed {
			r.logger.Info("duplicate webhook delivery", "event", event.ID, "type", event.Type)
			return nil
		}
		r.logger.Info("redelivery of unprocessed webhook event", "event", event.ID, "type", event.Type)
	}

	if err := r.dispatch(event.Type, pi.ID); err != nil {
		if logErr := r.events.RecordError(event.ID, err.Error()); logErr != nil {
			r.logger.Error("record webhook error", "event", event.ID, "error", logErr)
		}
		return err
	}

	if err := r.events.MarkProcessed(event.ID); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

// dispatch applies the event's effect. An event for an order that is not
// visible locally yet is a no-op, not an error: creation and delivery can
// race, and the processor is the source of truth either way.
func (r *Reconciler) dispatch(eventType stripe.EventType, intentID string) error {
	switch eventType {
	case "payment_intent.succeeded":
		return r.apply(intentID, func(o *model.Order) error {
			if err := r.orders.UpdatePaymentStatus(o.ID, model.PaymentStatusCompleted); err != nil {
				return err
			}
			return r.orders.UpdateStatus(o.ID, model.OrderStatusConfirmed)
		})
	case "payment_intent.payment_failed":
		return r.apply(intentID, func(o *model.Order) error {
			return r.orders.UpdatePaymentStatus(o.ID, model.PaymentStatusFailed)
		})
	case "payment_intent.canceled":
		return r.apply(intentID, func(o *model.Order) error {
			if err := r.orders.UpdatePaymentStatus(o.ID, model.PaymentStatusFailed); err != nil {
				return err
			}
			return r.orders.UpdateStatus(o.ID, model.OrderStatusCancelled)
		})
	case "payment_intent.requires_action":
		return r.apply(intentID, func(o *model.Order) error {
			return r.orders.UpdatePaymentStatus(o.ID, model.PaymentStatusPending)
		})
	default:
		r.logger.Debug("ignoring webhook event type", "type", eventType)
		return nil
	}
}

func (r *Reconciler) apply(intentID string, fn func(*model.Order) error) error {
	order, err := r.orders.GetByPaymentIntentID(intentID)
	if err != nil {
		return err
	}
	if order == nil {
		r.logger.Info("webhook event for unknown order", "payment_intent", intentID)
		return nil
	}
	return fn(order)
}
