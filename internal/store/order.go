package store

import (
	"database/sql"
	"fmt"

	"storefront/internal/model"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(scanner interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	var intentID, tracking sql.NullString
	err := scanner.Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &o.TotalAmount, &o.ShippingAddress,
		&o.Status, &o.PaymentStatus, &intentID, &tracking, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if intentID.Valid {
		o.PaymentIntentID = &intentID.String
	}
	if tracking.Valid {
		o.TrackingNumber = &tracking.String
	}
	return &o, nil
}

const orderCols = `id, user_id, order_number, total_amount, shipping_address, status, payment_status, payment_intent_id, tracking_number, created_at, updated_at`

// Create inserts the order and its line-item snapshot in one transaction.
func (s *OrderStore) Create(userID int64, orderNumber string, items []model.OrderItem, totalAmount float64, shippingAddress string) (*model.Order, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO orders (user_id, order_number, total_amount, shipping_address) VALUES (?, ?, ?, ?)`,
		userID, orderNumber, totalAmount, shippingAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, item := range items {
		_, err := tx.Exec(
			`INSERT INTO order_items (order_id, product_id, product_name, price, quantity) VALUES (?, ?, ?, ?, ?)`,
			id, item.ProductID, item.ProductName, item.Price, item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *OrderStore) getItems(orderID int64) ([]model.OrderItem, error) {
	rows, err := s.db.Query(
		`SELECT id, product_id, product_name, price, quantity FROM order_items WHERE order_id = ? ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *OrderStore) getOne(query string, args ...any) (*model.Order, error) {
	row := s.db.QueryRow(query, args...)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Items, err = s.getItems(o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) GetByID(id int64) (*model.Order, error) {
	return s.getOne(`SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
}

func (s *OrderStore) GetByIDForUser(id, userID int64) (*model.Order, error) {
	return s.getOne(`SELECT `+orderCols+` FROM orders WHERE id = ? AND user_id = ?`, id, userID)
}

// GetByPaymentIntentID locates the order a processor event refers to.
func (s *OrderStore) GetByPaymentIntentID(intentID string) (*model.Order, error) {
	if intentID == "" {
		return nil, nil
	}
	return s.getOne(`SELECT `+orderCols+` FROM orders WHERE payment_intent_id = ?`, intentID)
}

func (s *OrderStore) ListByUserID(userID int64) ([]model.Order, error) {
	rows, err := s.db.Query(
		`SELECT `+orderCols+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items, err = s.getItems(orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderStore) UpdateStatus(id int64, status model.OrderStatus) error {
	_, err := s.db.Exec(
		`UPDATE orders SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (s *OrderStore) UpdatePaymentStatus(id int64, paymentStatus model.PaymentStatus) error {
	_, err := s.db.Exec(
		`UPDATE orders SET payment_status = ?, updated_at = datetime('now') WHERE id = ?`,
		paymentStatus, id,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (s *OrderStore) SetPaymentIntentID(id int64, intentID string) error {
	_, err := s.db.Exec(
		`UPDATE orders SET payment_intent_id = ?, updated_at = datetime('now') WHERE id = ?`,
		intentID, id,
	)
	if err != nil {
		return fmt.Errorf("set payment intent id: %w", err)
	}
	return nil
}

// SetTrackingNumber records the shipment and moves the order to shipped.
func (s *OrderStore) SetTrackingNumber(id int64, trackingNumber string) error {
	_, err := s.db.Exec(
		`UPDATE orders SET tracking_number = ?, status = ?, updated_at = datetime('now') WHERE id = ?`,
		trackingNumber, model.OrderStatusShipped, id,
	)
	if err != nil {
		return fmt.Errorf("set tracking number: %w", err)
	}
	return nil
}
