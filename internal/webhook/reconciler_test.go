package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"storefront/internal/database"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/store"
)

const testSecret = "whsec_test_secret"

func setupReconcilerTest(t *testing.T) (*Reconciler, *store.OrderStore, *store.WebhookEventStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	orders := store.NewOrderStore(db)
	events := store.NewWebhookEventStore(db)
	verifier := payment.NewClient(payment.Config{WebhookSecret: testSecret})
	r := NewReconciler(events, orders, verifier, slog.New(slog.DiscardHandler))

	u, err := users.Create("alice@example.com", "hash", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return r, orders, events, u.ID
}

func createOrderWithIntent(t *testing.T, orders *store.OrderStore, userID int64, intentID string) *model.Order {
	t.Helper()
	o, err := orders.Create(userID, fmt.Sprintf("ORD-1-%s", intentID), []model.OrderItem{
		{ProductID: "sku-1", ProductName: "Mug", Price: 12.50, Quantity: 2},
	}, 25.00, "")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := orders.SetPaymentIntentID(o.ID, intentID); err != nil {
		t.Fatalf("set intent id: %v", err)
	}
	return o
}

// signedEvent builds a Stripe event payload and a valid signature header,
// the same scheme the processor uses: HMAC-SHA256 over "<ts>.<payload>".
func signedEvent(eventID, eventType, intentID, status string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","api_version":%q,"type":%q,"data":{"object":{"id":%q,"object":"payment_intent","status":%q}}}`,
		eventID, stripe.APIVersion, eventType, intentID, status,
	))
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	sig := hex.EncodeToString(mac.Sum(nil))
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, sig)
}

func TestHandleEventInvalidSignature(t *testing.T) {
	r, _, events, _ := setupReconcilerTest(t)

	payload, _ := signedEvent("evt_1", "payment_intent.succeeded", "pi_1", "succeeded")
	err := r.HandleEvent(payload, "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}

	// Nothing reaches the ledger before the signature check
	e, _ := events.GetByEventID("evt_1")
	if e != nil {
		t.Error("expected no ledger row for rejected delivery")
	}
}

func TestHandleEventSucceeded(t *testing.T) {
	r, orders, events, userID := setupReconcilerTest(t)
	o := createOrderWithIntent(t, orders, userID, "pi_1")

	payload, sig := signedEvent("evt_1", "payment_intent.succeeded", "pi_1", "succeeded")
	if err := r.HandleEvent(payload, sig); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	got, _ := orders.GetByID(o.ID)
	if got.PaymentStatus != model.PaymentStatusCompleted {
		t.Errorf("payment status = %q, want completed", got.PaymentStatus)
	}
	if got.Status != model.OrderStatusConfirmed {
		t.Errorf("status = %q, want confirmed", got.Status)
	}

	e, _ := events.GetByEventID("evt_1")
	if e == nil {
		t.Fatal("expected ledger row")
	}
	if !e.Processed {
		t.Error("expected event marked processed")
	}
	if e.OrderID == nil || *e.OrderID != o.ID {
		t.Error("expected ledger row linked to order")
	}
}

func TestHandleEventDuplicateNotReapplied(t *testing.T) {
	r, orders, _, userID := setupReconcilerTest(t)
	o := createOrderWithIntent(t, orders, userID, "pi_1")

	payload, sig := signedEvent("evt_1", "payment_intent.succeeded", "pi_1", "succeeded")
	if err := r.HandleEvent(payload, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// Reset state to make a re-application detectable
	orders.UpdatePaymentStatus(o.ID, model.PaymentStatusRefunded)

	if err := r.HandleEvent(payload, sig); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	got, _ := orders.GetByID(o.ID)
	if got.PaymentStatus != model.PaymentStatusRefunded {
		t.Errorf("payment status = %q, want refunded (duplicate must not reapply)", got.PaymentStatus)
	}
}

func TestHandleEventRedeliveryAfterFailedDispatch(t *testing.T) {
	r, orders, events, userID := setupReconcilerTest(t)
	o := createOrderWithIntent(t, orders, userID, "pi_1")

	// A prior delivery that crashed after the ledger insert leaves an
	// unprocessed row behind.
	fresh, err := events.Insert("evt_1", "payment_intent.succeeded", "pi_1", "succeeded", &o.ID, nil)
	if err != nil || !fresh {
		t.Fatalf("seed ledger row: fresh=%v err=%v", fresh, err)
	}

	payload, sig := signedEvent("evt_1", "payment_intent.succeeded", "pi_1", "succeeded")
	if err := r.HandleEvent(payload, sig); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	got, _ := orders.GetByID(o.ID)
	if got.PaymentStatus != model.PaymentStatusCompleted {
		t.Errorf("payment status = %q, want completed (redelivery must reprocess)", got.PaymentStatus)
	}
	if got.Status != model.OrderStatusConfirmed {
		t.Errorf("status = %q, want confirmed", got.Status)
	}

	e, _ := events.GetByEventID("evt_1")
	if e == nil || !e.Processed {
		t.Error("expected ledger row marked processed after redelivery")
	}
}

func TestHandleEventTypeMapping(t *testing.T) {
	cases := []struct {
		eventType     string
		piStatus      string
		wantPayment   model.PaymentStatus
		wantStatus    model.OrderStatus
		statusChanged bool
	}{
		{"payment_intent.payment_failed", "requires_payment_method", model.PaymentStatusFailed, "", false},
		{"payment_intent.canceled", "canceled", model.PaymentStatusFailed, model.OrderStatusCancelled, true},
		{"payment_intent.requires_action", "requires_action", model.PaymentStatusPending, "", false},
	}

	for i, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			r, orders, _, userID := setupReconcilerTest(t)
			o := createOrderWithIntent(t, orders, userID, "pi_1")

			payload, sig := signedEvent(fmt.Sprintf("evt_%d", i), tc.eventType, "pi_1", tc.piStatus)
			if err := r.HandleEvent(payload, sig); err != nil {
				t.Fatalf("handle event: %v", err)
			}

			got, _ := orders.GetByID(o.ID)
			if got.PaymentStatus != tc.wantPayment {
				t.Errorf("payment status = %q, want %q", got.PaymentStatus, tc.wantPayment)
			}
			if tc.statusChanged && got.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tc.wantStatus)
			}
			if !tc.statusChanged && got.Status != model.OrderStatusPending {
				t.Errorf("status = %q, want pending (untouched)", got.Status)
			}
		})
	}
}

func TestHandleEventUnknownOrder(t *testing.T) {
	r, _, events, _ := setupReconcilerTest(t)

	payload, sig := signedEvent("evt_1", "payment_intent.succeeded", "pi_unknown", "succeeded")
	if err := r.HandleEvent(payload, sig); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	// Logged and acknowledged, no order to touch
	e, _ := events.GetByEventID("evt_1")
	if e == nil || !e.Processed {
		t.Error("expected event logged and processed")
	}
	if e.OrderID != nil {
		t.Error("expected no order link")
	}
}

func TestHandleEventIgnoredType(t *testing.T) {
	r, orders, events, userID := setupReconcilerTest(t)
	o := createOrderWithIntent(t, orders, userID, "pi_1")

	payload, sig := signedEvent("evt_1", "payment_intent.created", "pi_1", "requires_payment_method")
	if err := r.HandleEvent(payload, sig); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	got, _ := orders.GetByID(o.ID)
	if got.PaymentStatus != model.PaymentStatusPending {
		t.Errorf("payment status = %q, want pending (untouched)", got.PaymentStatus)
	}

	e, _ := events.GetByEventID("evt_1")
	if e == nil || !e.Processed {
		t.Error("expected ignored event still acknowledged in the ledger")
	}
}

func TestHandleEventStaleTimestamp(t *testing.T) {
	r, _, _, _ := setupReconcilerTest(t)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","object":"event","api_version":%q,"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded"}}}`,
		stripe.APIVersion,
	))
	ts := time.Now().Add(-time.Hour).Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	if err := r.HandleEvent(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("got %v, want ErrInvalidSignature for stale timestamp", err)
	}
}
