// Package catalog is the engine's read-side view of the product catalog.
// Catalog ownership (CRUD, search, categories) lives elsewhere; the engine
// only resolves product snapshots at placement time and lists products that
// have fallen below their reorder threshold.
package catalog

import (
	"context"

	"github.com/sparecart/order-engine/internal/domain"
)

// Lookup resolves products by id. Implementations return (nil, nil) when the
// product does not exist.
type Lookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Store extends Lookup with the queries the notification worker needs.
type Store interface {
	Lookup
	ListLowStock(ctx context.Context) ([]domain.Product, error)
}
