package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sparecart/order-engine/internal/domain"
)

func product(id string, price string) *domain.Product {
	return &domain.Product{ID: id, Name: "part " + id, Price: decimal.RequireFromString(price)}
}

func TestBuildItems(t *testing.T) {
	t.Run("computes line totals and subtotal", func(t *testing.T) {
		items, subtotal, err := BuildItems([]LineItem{
			{Product: product("p1", "10.00"), Quantity: 2},
			{Product: product("p2", "5.00"), Quantity: 3},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
		if !items[0].LineTotal.Equal(decimal.RequireFromString("20.00")) {
			t.Errorf("expected line total 20.00, got %s", items[0].LineTotal)
		}
		if !items[1].LineTotal.Equal(decimal.RequireFromString("15.00")) {
			t.Errorf("expected line total 15.00, got %s", items[1].LineTotal)
		}
		if !subtotal.Equal(decimal.RequireFromString("35.00")) {
			t.Errorf("expected subtotal 35.00, got %s", subtotal)
		}
	})

	t.Run("freezes unit price from the product snapshot", func(t *testing.T) {
		p := product("p1", "9.99")
		items, _, err := BuildItems([]LineItem{{Product: p, Quantity: 1}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p.Price = decimal.RequireFromString("99.99")
		if !items[0].UnitPrice.Equal(decimal.RequireFromString("9.99")) {
			t.Errorf("unit price should be frozen at 9.99, got %s", items[0].UnitPrice)
		}
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		_, _, err := BuildItems([]LineItem{{Product: product("p1", "10.00"), Quantity: 0}})
		var invalidQty *domain.InvalidQuantityError
		if !errors.As(err, &invalidQty) {
			t.Fatalf("expected InvalidQuantityError, got %v", err)
		}
		if invalidQty.ProductID != "p1" {
			t.Errorf("expected product p1 in error, got %s", invalidQty.ProductID)
		}
	})

	t.Run("rejects negative quantity", func(t *testing.T) {
		_, _, err := BuildItems([]LineItem{{Product: product("p1", "10.00"), Quantity: -3}})
		var invalidQty *domain.InvalidQuantityError
		if !errors.As(err, &invalidQty) {
			t.Fatalf("expected InvalidQuantityError, got %v", err)
		}
	})
}

func TestTotals(t *testing.T) {
	t.Run("total is subtotal plus tax plus shipping", func(t *testing.T) {
		cfg := Config{
			TaxRate:     decimal.RequireFromString("0.0428571428571"),
			ShippingFee: decimal.RequireFromString("2.00"),
		}
		subtotal := decimal.RequireFromString("35.00")
		tax, shipping, total := cfg.Totals(subtotal)
		if !tax.Equal(decimal.RequireFromString("1.50")) {
			t.Errorf("expected tax 1.50, got %s", tax)
		}
		if !shipping.Equal(decimal.RequireFromString("2.00")) {
			t.Errorf("expected shipping 2.00, got %s", shipping)
		}
		if !total.Equal(decimal.RequireFromString("38.50")) {
			t.Errorf("expected total 38.50, got %s", total)
		}
	})

	t.Run("waives shipping above the free threshold", func(t *testing.T) {
		cfg := Config{
			TaxRate:           decimal.Zero,
			ShippingFee:       decimal.RequireFromString("5.00"),
			FreeShippingAbove: decimal.RequireFromString("100.00"),
		}
		_, shipping, total := cfg.Totals(decimal.RequireFromString("150.00"))
		if !shipping.IsZero() {
			t.Errorf("expected free shipping, got %s", shipping)
		}
		if !total.Equal(decimal.RequireFromString("150.00")) {
			t.Errorf("expected total 150.00, got %s", total)
		}
	})
}
