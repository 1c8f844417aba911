package store

import (
	"database/sql"
	"fmt"

	"storefront/internal/model"
)

// CartStore exists to serve checkout: fetch the cart snapshot and clear it
// once the order is durable. Cart arithmetic lives elsewhere.
type CartStore struct {
	db *sql.DB
}

func NewCartStore(db *sql.DB) *CartStore {
	return &CartStore{db: db}
}

// GetByUserID returns the user's cart with items, or nil if the user has no
// cart row yet.
func (s *CartStore) GetByUserID(userID int64) (*model.Cart, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, total_amount, total_items, updated_at FROM carts WHERE user_id = ?`,
		userID,
	)
	var c model.Cart
	err := row.Scan(&c.ID, &c.UserID, &c.TotalAmount, &c.TotalItems, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, product_id, product_name, price, quantity FROM cart_items WHERE cart_id = ? ORDER BY id`,
		c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	return &c, rows.Err()
}

// ReplaceItems overwrites the cart contents and recomputes totals.
func (s *CartStore) ReplaceItems(userID int64, items []model.CartItem) (*model.Cart, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var totalAmount float64
	var totalItems int
	for _, item := range items {
		totalAmount += item.Price * float64(item.Quantity)
		totalItems += item.Quantity
	}

	_, err = tx.Exec(
		`INSERT INTO carts (user_id, total_amount, total_items, updated_at) VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (user_id) DO UPDATE SET total_amount = excluded.total_amount, total_items = excluded.total_items, updated_at = excluded.updated_at`,
		userID, totalAmount, totalItems,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert cart: %w", err)
	}

	var cartID int64
	if err := tx.QueryRow(`SELECT id FROM carts WHERE user_id = ?`, userID).Scan(&cartID); err != nil {
		return nil, fmt.Errorf("get cart id: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return nil, fmt.Errorf("clear cart items: %w", err)
	}
	for _, item := range items {
		_, err := tx.Exec(
			`INSERT INTO cart_items (cart_id, product_id, product_name, price, quantity) VALUES (?, ?, ?, ?, ?)`,
			cartID, item.ProductID, item.ProductName, item.Price, item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("insert cart item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByUserID(userID)
}

// Clear empties the cart and zeroes its totals. Clearing an empty or
// missing cart is not an error.
func (s *CartStore) Clear(userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var cartID int64
	err = tx.QueryRow(`SELECT id FROM carts WHERE user_id = ?`, userID).Scan(&cartID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get cart id: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE carts SET total_amount = 0, total_items = 0, updated_at = datetime('now') WHERE id = ?`,
		cartID,
	); err != nil {
		return fmt.Errorf("reset cart totals: %w", err)
	}

	return tx.Commit()
}
