package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/jackc/pgx/v5"
)

var ErrProductNotFound = errors.New("product not found")

// Querier is satisfied by the pool and by pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProductRepository persists discovered products.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Put stores p unless a product with the same id exists. It returns the row id
// and whether p was a duplicate.
func (r *ProductRepository) Put(ctx context.Context, p models.Product) (int64, bool, error) {
	return r.PutWithTx(ctx, r.db.pool, p)
}

// PutWithTx is Put inside a caller-owned transaction.
func (r *ProductRepository) PutWithTx(ctx context.Context, q Querier, p models.Product) (int64, bool, error) {
	query := `
		INSERT INTO products (
			product_id, name, description, price,
			commission_rate, commission_amount, sales, rating,
			category, image_url, product_url, affiliate_link,
			status, source, technique, discovered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (product_id) DO NOTHING
		RETURNING id`

	status := p.Status
	if status == "" {
		status = models.StatusPending
	}

	var id int64
	err := q.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.Price,
		p.CommissionRate, p.CommissionAmount, p.Sales, p.Rating,
		p.Category, p.ImageURL, p.ProductURL, p.AffiliateLink,
		string(status), string(p.Source), string(p.Technique), p.DiscoveredAt,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert product: %w", err)
	}

	return id, false, nil
}

// UpdateStatus moves a product through the content pipeline.
func (r *ProductRepository) UpdateStatus(ctx context.Context, productID string, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	query := `
		UPDATE products SET
			status = $2,
			updated_at = NOW()
		WHERE product_id = $1`

	result, err := r.db.pool.Exec(ctx, query, productID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update product status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Get retrieves a single product by its external id.
func (r *ProductRepository) Get(ctx context.Context, productID string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE product_id = $1`

	p, err := scanProduct(r.db.pool.QueryRow(ctx, query, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return p, nil
}

// ListFilter narrows List. An empty Status lists every product.
type ListFilter struct {
	Status models.Status
	Limit  int
}

// List returns products by sales, most popular first.
func (r *ProductRepository) List(ctx context.Context, f ListFilter) ([]models.Product, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE ($1::text = '' OR status = $1)
		ORDER BY sales DESC, discovered_at ASC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, string(f.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// Stats summarises the store.
type Stats struct {
	Total    int64                   `json:"total"`
	ByStatus map[models.Status]int64 `json:"by_status"`
	BySource map[models.Source]int64 `json:"by_source"`
}

func (r *ProductRepository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT status, source, COUNT(*) AS count
		FROM products
		GROUP BY status, source`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	defer rows.Close()

	stats := &Stats{
		ByStatus: make(map[models.Status]int64),
		BySource: make(map[models.Source]int64),
	}
	for rows.Next() {
		var status, source string
		var count int64
		if err := rows.Scan(&status, &source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		stats.Total += count
		stats.ByStatus[models.Status(status)] += count
		stats.BySource[models.Source(source)] += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

const productColumns = `
	product_id, name, description, price::float8,
	commission_rate::float8, commission_amount::float8, sales, rating::float8,
	category, image_url, product_url, affiliate_link,
	status, source, technique, discovered_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*models.Product, error) {
	var p models.Product
	var status, source, technique string
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price,
		&p.CommissionRate, &p.CommissionAmount, &p.Sales, &p.Rating,
		&p.Category, &p.ImageURL, &p.ProductURL, &p.AffiliateLink,
		&status, &source, &technique, &p.DiscoveredAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	p.Source = models.Source(source)
	p.Technique = models.Technique(technique)
	return &p, nil
}
