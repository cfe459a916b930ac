// Package stock is the only writer of product stock. Its contract is scoped
// to single-product atomicity: one Adjust call touches one product record,
// and nothing stronger is assumed of the backing store.
package stock

import "context"

// Ledger applies signed quantity changes to a product's available stock.
//
// A negative delta (debit) must fail with InsufficientStockError when the
// current stock cannot cover it, leaving the record untouched. A positive
// delta (credit) always succeeds unless the product no longer exists, in
// which case NotFoundError is returned so a lost restock is surfaced rather
// than silently dropped. Every successful adjustment bumps the product's
// updated-at marker.
type Ledger interface {
	Adjust(ctx context.Context, productID string, delta int) error
}
