// Package pricing builds priced line items from catalog snapshots. It is pure
// computation: no I/O, no clock, no mutation of its inputs.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/sparecart/order-engine/internal/domain"
)

// Config holds the order-level charges applied on top of the item subtotal.
// The original storefront trusted client-sent tax and shipping figures; here
// they are always computed server-side.
type Config struct {
	TaxRate           decimal.Decimal // e.g. 0.08 for 8%
	ShippingFee       decimal.Decimal // flat fee per order
	FreeShippingAbove decimal.Decimal // subtotal at or above which shipping is waived; zero disables
}

// LineItem pairs a resolved product with the requested quantity.
type LineItem struct {
	Product  *domain.Product
	Quantity int
}

// BuildItems freezes unit prices and computes line totals for each request,
// returning the items and their subtotal. Quantities must already have been
// validated positive; a non-positive quantity here is rejected with
// InvalidQuantityError as a second line of defense.
func BuildItems(lines []LineItem) ([]domain.OrderItem, decimal.Decimal, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	subtotal := decimal.Zero

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, &domain.InvalidQuantityError{
				ProductID: line.Product.ID,
				Quantity:  line.Quantity,
			}
		}

		lineTotal := line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, domain.OrderItem{
			ProductID:    line.Product.ID,
			ProductName:  line.Product.Name,
			ProductImage: line.Product.ImageURL,
			Quantity:     line.Quantity,
			UnitPrice:    line.Product.Price,
			LineTotal:    lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	return items, subtotal, nil
}

// Totals computes tax, shipping and the grand total for a subtotal.
func (c Config) Totals(subtotal decimal.Decimal) (tax, shipping, total decimal.Decimal) {
	tax = subtotal.Mul(c.TaxRate).Round(2)

	shipping = c.ShippingFee
	if c.FreeShippingAbove.IsPositive() && subtotal.GreaterThanOrEqual(c.FreeShippingAbove) {
		shipping = decimal.Zero
	}

	total = subtotal.Add(tax).Add(shipping)
	return tax, shipping, total
}
