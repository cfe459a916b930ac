package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the engine's read view of a catalog product. The catalog owns the
// record; the engine only ever writes the stock field, and only through the
// stock ledger.
type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Stock            int             `json:"stock"`
	ReorderThreshold int             `json:"reorder_threshold"`
	ImageURL         string          `json:"image_url,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// LowStock reports whether available stock has fallen to or below the
// product's reorder threshold.
func (p *Product) LowStock() bool {
	return p.Stock <= p.ReorderThreshold
}
