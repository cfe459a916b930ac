package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// IsValid reports whether s is one of the known order statuses.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "PENDING"
	PaymentStatusPaid          PaymentStatus = "PAID"
	PaymentStatusFailed        PaymentStatus = "FAILED"
	PaymentStatusRefundPending PaymentStatus = "REFUND_PENDING"
	PaymentStatusRefunded      PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusRefundPending, PaymentStatusRefunded:
		return true
	}
	return false
}

// OrderItem is a point-in-time snapshot of a catalog product. Name, image and
// unit price are copied at placement so later catalog edits never change a
// placed order.
type OrderItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is the aggregate root. Items are owned by the order and never exist
// outside it. After creation the aggregate is mutated only through status,
// payment and tracking patches, never by re-saving the whole record.
type Order struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	UserEmail         string           `json:"user_email,omitempty"`
	Items             []OrderItem      `json:"items"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	Tax               decimal.Decimal  `json:"tax"`
	ShippingCost      decimal.Decimal  `json:"shipping_cost"`
	Total             decimal.Decimal  `json:"total"`
	Status            OrderStatus      `json:"status"`
	PaymentStatus     PaymentStatus    `json:"payment_status"`
	ShippingAddress   *ShippingAddress `json:"shipping_address,omitempty"`
	TrackingNumber    string           `json:"tracking_number,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	EstimatedDelivery time.Time        `json:"estimated_delivery"`
}
