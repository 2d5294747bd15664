package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/closeshop/internal/model"
)

type CartStore struct {
	db *sql.DB
}

func NewCartStore(db *sql.DB) *CartStore {
	return &CartStore{db: db}
}

const cartSelect = `SELECT c.id, c.user_id, c.product_id, c.quantity, p.title, p.price_cents, p.image_url, c.created_at
	FROM cart_items c JOIN products p ON p.id = c.product_id`

func scanCartItem(scanner interface{ Scan(...any) error }) (*model.CartItem, error) {
	var it model.CartItem
	err := scanner.Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.Title, &it.PriceCents, &it.ImageURL, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Add puts qty of a product in the user's cart, merging with an existing line.
func (s *CartStore) Add(userID string, productID int64, qty int) (*model.CartItem, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("add cart item: quantity must be positive")
	}
	_, err := s.db.Exec(
		`INSERT INTO cart_items (user_id, product_id, quantity) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, product_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		userID, productID, qty,
	)
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	row := s.db.QueryRow(cartSelect+` WHERE c.user_id = ? AND c.product_id = ?`, userID, productID)
	return scanCartItem(row)
}

func (s *CartStore) Get(id int64, userID string) (*model.CartItem, error) {
	row := s.db.QueryRow(cartSelect+` WHERE c.id = ? AND c.user_id = ?`, id, userID)
	it, err := scanCartItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return it, nil
}

func (s *CartStore) List(userID string) ([]model.CartItem, error) {
	rows, err := s.db.Query(cartSelect+` WHERE c.user_id = ? ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// SetQuantity updates a line's quantity; qty <= 0 removes the line.
func (s *CartStore) SetQuantity(id int64, userID string, qty int) (*model.CartItem, error) {
	if qty <= 0 {
		return nil, s.Remove(id, userID)
	}
	_, err := s.db.Exec(`UPDATE cart_items SET quantity = ? WHERE id = ? AND user_id = ?`, qty, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	return s.Get(id, userID)
}

func (s *CartStore) Remove(id int64, userID string) error {
	_, err := s.db.Exec(`DELETE FROM cart_items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

func (s *CartStore) Clear(userID string) error {
	_, err := s.db.Exec(`DELETE FROM cart_items WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
