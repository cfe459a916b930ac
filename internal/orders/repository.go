package orders

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sparecart/order-engine/internal/domain"
)

// Repository persists order aggregates. Two interchangeable backings satisfy
// this contract: a relational one (Postgres, multi-row transactions) and a
// document one (Firestore, per-document atomicity only). Business logic never
// knows which one it is talking to.
//
// Get returns (nil, nil) when the order does not exist. Patch methods return
// NotFoundError for a missing order and bump the aggregate's updated-at
// marker; UpdateTracking also forces the status to SHIPPED, matching the
// fulfillment flow where a tracking number only ever appears at ship time.
type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)
	// MarkCancelled atomically moves a PENDING or CONFIRMED order to
	// CANCELLED and reports whether this call made the change. Concurrent
	// cancellations race on this claim; at most one caller wins.
	MarkCancelled(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
	UpdateTracking(ctx context.Context, id, trackingNumber string) error
	TotalRevenue(ctx context.Context) (decimal.Decimal, error)
	Count(ctx context.Context) (int64, error)
}
