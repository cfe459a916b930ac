package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sparecart/order-engine/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, reorder_threshold, image_url, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Price, &product.Stock,
		&product.ReorderThreshold, &product.ImageURL, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return product, nil
}

func (s *PostgresStore) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, stock, reorder_threshold, image_url, updated_at
		FROM products
		WHERE stock <= reorder_threshold
		ORDER BY stock ASC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Price, &product.Stock,
			&product.ReorderThreshold, &product.ImageURL, &product.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}
