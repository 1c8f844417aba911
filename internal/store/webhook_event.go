package store

import (
	"database/sql"
	"fmt"

	"storefront/internal/model"
)

// WebhookEventStore is the durable, idempotent ledger of payment events.
// The unique event_id column is the deduplication key for redeliveries.
type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func scanWebhookEvent(scanner interface{ Scan(...any) error }) (*model.WebhookEvent, error) {
	var e model.WebhookEvent
	var orderID sql.NullInt64
	var errMsg sql.NullString
	var raw sql.NullString
	err := scanner.Scan(
		&e.ID, &e.EventID, &e.EventType, &e.PaymentIntentID, &e.Status,
		&orderID, &e.Processed, &errMsg, &raw, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		e.OrderID = &orderID.Int64
	}
	if errMsg.Valid {
		e.Error = &errMsg.String
	}
	if raw.Valid {
		e.RawData = []byte(raw.String)
	}
	return &e, nil
}

const webhookEventCols = `id, event_id, event_type, payment_intent_id, status, order_id, processed, error, raw_data, created_at`

// Insert records the event before any side effects are applied. It reports
// false when a row with the same event id already exists, which marks the
// delivery as a duplicate that must not be reapplied.
func (s *WebhookEventStore) Insert(eventID, eventType, paymentIntentID, status string, orderID *int64, rawData []byte) (bool, error) {
	var oID sql.NullInt64
	if orderID != nil {
		oID = sql.NullInt64{Int64: *orderID, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO webhook_events (event_id, event_type, payment_intent_id, status, order_id, raw_data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, eventType, paymentIntentID, status, oID, string(rawData),
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *WebhookEventStore) GetByEventID(eventID string) (*model.WebhookEvent, error) {
	row := s.db.QueryRow(`SELECT `+webhookEventCols+` FROM webhook_events WHERE event_id = ?`, eventID)
	e, err := scanWebhookEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

func (s *WebhookEventStore) MarkProcessed(eventID string) error {
	_, err := s.db.Exec(
		`UPDATE webhook_events SET processed = 1, error = NULL WHERE event_id = ?`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

// RecordError annotates the ledger row so a failed dispatch stays visible
// and reprocessable after the processor redelivers.
func (s *WebhookEventStore) RecordError(eventID, message string) error {
	_, err := s.db.Exec(
		`UPDATE webhook_events SET error = ? WHERE event_id = ?`,
		message, eventID,
	)
	if err != nil {
		return fmt.Errorf("record webhook event error: %w", err)
	}
	return nil
}

// ListUnprocessed returns rows that were logged but never successfully
// dispatched, oldest first.
func (s *WebhookEventStore) ListUnprocessed(limit int) ([]model.WebhookEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+webhookEventCols+` FROM webhook_events WHERE processed = 0 ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed webhook events: %w", err)
	}
	defer rows.Close()

	var events []model.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
