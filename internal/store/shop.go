package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/closeshop/internal/model"
)

type ShopStore struct {
	db *sql.DB
}

func NewShopStore(db *sql.DB) *ShopStore {
	return &ShopStore{db: db}
}

func scanShop(scanner interface{ Scan(...any) error }) (*model.Shop, error) {
	var sh model.Shop
	var lat, lon sql.NullFloat64
	err := scanner.Scan(&sh.ID, &sh.OwnerID, &sh.Name, &sh.Description, &sh.Address, &lat, &lon, &sh.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		sh.Latitude = &lat.Float64
	}
	if lon.Valid {
		sh.Longitude = &lon.Float64
	}
	return &sh, nil
}

const shopCols = `id, owner_id, name, description, address, latitude, longitude, created_at`

func (s *ShopStore) Create(ownerID, name, description, address string, lat, lon *float64) (*model.Shop, error) {
	result, err := s.db.Exec(
		`INSERT INTO shops (owner_id, name, description, address, latitude, longitude) VALUES (?, ?, ?, ?, ?, ?)`,
		ownerID, name, description, address, lat, lon,
	)
	if err != nil {
		return nil, fmt.Errorf("insert shop: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ShopStore) GetByID(id int64) (*model.Shop, error) {
	row := s.db.QueryRow(`SELECT `+shopCols+` FROM shops WHERE id = ?`, id)
	sh, err := scanShop(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	return sh, nil
}

// List returns all shops, or only those owned by ownerID when it is non-empty.
func (s *ShopStore) List(ownerID string) ([]model.Shop, error) {
	query := `SELECT ` + shopCols + ` FROM shops`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	defer rows.Close()

	var shops []model.Shop
	for rows.Next() {
		sh, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		shops = append(shops, *sh)
	}
	return shops, rows.Err()
}

func (s *ShopStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM shops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count shops: %w", err)
	}
	return n, nil
}

type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

func scanProduct(scanner interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	err := scanner.Scan(&p.ID, &p.ShopID, &p.Title, &p.Description, &p.PriceCents, &p.ImageURL, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const productCols = `id, shop_id, title, description, price_cents, image_url, created_at`

func (s *ProductStore) Create(shopID int64, title, description string, priceCents int64, imageURL string) (*model.Product, error) {
	result, err := s.db.Exec(
		`INSERT INTO products (shop_id, title, description, price_cents, image_url) VALUES (?, ?, ?, ?, ?)`,
		shopID, title, description, priceCents, imageURL,
	)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ProductStore) GetByID(id int64) (*model.Product, error) {
	row := s.db.QueryRow(`SELECT `+productCols+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// List returns products, filtered to one shop when shopID > 0.
func (s *ProductStore) List(shopID int64) ([]model.Product, error) {
	query := `SELECT ` + productCols + ` FROM products`
	var args []any
	if shopID > 0 {
		query += ` WHERE shop_id = ?`
		args = append(args, shopID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *ProductStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
