package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sparecart/order-engine/internal/catalog"
	"github.com/sparecart/order-engine/internal/domain"
	"github.com/sparecart/order-engine/internal/pricing"
	"github.com/sparecart/order-engine/internal/stock"
	"github.com/sparecart/order-engine/internal/telemetry"
)

// DefaultDeliveryLeadTime is added to the placement time to produce the
// estimated delivery date.
const DefaultDeliveryLeadTime = 7 * 24 * time.Hour

// EventPublisher emits order lifecycle events. A nil publisher disables
// publishing; a failed publish is logged, never propagated, since the order
// is already committed by then.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error
	OrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error
}

// Service sequences the stock ledger, pricing calculator, state machine and
// repository into the public order use cases. Each use case is a transaction
// boundary from the caller's point of view: cross-record atomicity the
// backing stores cannot give is recovered with explicit compensation.
type Service struct {
	repo     Repository
	ledger   stock.Ledger
	catalog  catalog.Lookup
	events   EventPublisher
	metrics  *telemetry.OrderMetrics
	pricing  pricing.Config
	leadTime time.Duration
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

type ServiceOption func(*Service)

// WithEventPublisher wires lifecycle event publishing.
func WithEventPublisher(events EventPublisher) ServiceOption {
	return func(s *Service) { s.events = events }
}

// WithMetrics wires the order meters.
func WithMetrics(metrics *telemetry.OrderMetrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides order id generation, for deterministic tests.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// WithDeliveryLeadTime overrides the estimated delivery lead time.
func WithDeliveryLeadTime(leadTime time.Duration) ServiceOption {
	return func(s *Service) { s.leadTime = leadTime }
}

func NewService(repo Repository, ledger stock.Ledger, lookup catalog.Lookup,
	pricingCfg pricing.Config, logger *slog.Logger, opts ...ServiceOption) *Service {

	s := &Service{
		repo:     repo,
		ledger:   ledger,
		catalog:  lookup,
		pricing:  pricingCfg,
		leadTime: DefaultDeliveryLeadTime,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ItemRequest is one requested line: a product reference and a quantity.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest carries an already-authenticated user identity; the
// service never verifies credentials.
type PlaceOrderRequest struct {
	UserID          string
	UserEmail       string
	Items           []ItemRequest
	ShippingAddress *domain.ShippingAddress
}

type appliedDebit struct {
	productID string
	quantity  int
}

// PlaceOrder debits stock per line item, prices the order and persists the
// aggregate in PENDING. Neither backing store can commit the debits as one
// unit, so any failure after the first debit credits back everything applied
// so far: the caller sees one error and no net stock change.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	// Validation runs before any stock mutation so it never needs compensation.
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &domain.InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	}

	var applied []appliedDebit
	lines := make([]pricing.LineItem, 0, len(req.Items))

	for _, item := range req.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, s.compensate(ctx, applied, &domain.PersistenceError{Op: "resolve product", Err: err})
		}
		if product == nil {
			return nil, s.compensate(ctx, applied, &domain.NotFoundError{Kind: "product", ID: item.ProductID})
		}

		if err := s.ledger.Adjust(ctx, item.ProductID, -item.Quantity); err != nil {
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				s.metrics.StockConflict(ctx)
			}
			return nil, s.compensate(ctx, applied, err)
		}

		applied = append(applied, appliedDebit{productID: item.ProductID, quantity: item.Quantity})
		lines = append(lines, pricing.LineItem{Product: product, Quantity: item.Quantity})
	}

	items, subtotal, err := pricing.BuildItems(lines)
	if err != nil {
		return nil, s.compensate(ctx, applied, err)
	}
	tax, shipping, total := s.pricing.Totals(subtotal)

	now := s.now()
	order := &domain.Order{
		ID:                s.newID(),
		UserID:            req.UserID,
		UserEmail:         req.UserEmail,
		Items:             items,
		Subtotal:          subtotal,
		Tax:               tax,
		ShippingCost:      shipping,
		Total:             total,
		Status:            domain.OrderStatusPending,
		PaymentStatus:     domain.PaymentStatusPending,
		ShippingAddress:   req.ShippingAddress,
		CreatedAt:         now,
		UpdatedAt:         now,
		EstimatedDelivery: now.Add(s.leadTime),
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, s.compensate(ctx, applied, err)
	}

	if s.events != nil {
		event := domain.OrderPlacedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			UserEmail: order.UserEmail,
			Items:     order.Items,
			Total:     order.Total.String(),
			Timestamp: order.CreatedAt,
		}
		if err := s.events.OrderPlaced(ctx, event); err != nil {
			s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
		}
	}

	s.metrics.OrderPlaced(ctx)
	s.logger.Info("order placed", "order_id", order.ID, "user_id", order.UserID,
		"items", len(order.Items), "total", order.Total.String())
	return order, nil
}

// compensate credits back already-applied debits before surfacing cause. A
// failed credit leaves stock inconsistent with order state; that failure is
// joined onto the returned error rather than swallowed, because it requires
// out-of-band reconciliation.
func (s *Service) compensate(ctx context.Context, applied []appliedDebit, cause error) error {
	var failed error
	for _, debit := range applied {
		if err := s.ledger.Adjust(ctx, debit.productID, debit.quantity); err != nil {
			s.logger.Error("stock compensation failed, manual reconciliation required",
				"error", err, "product_id", debit.productID, "quantity", debit.quantity)
			failed = errors.Join(failed, fmt.Errorf("restore %d units of product %s: %w",
				debit.quantity, debit.productID, err))
		}
	}
	if failed != nil {
		return errors.Join(cause, fmt.Errorf("stock compensation incomplete: %w", failed))
	}
	return cause
}

// CancelOrder runs the compensating transition: claim the CANCELLED status,
// then restore stock for every line item. Cancelling an already-cancelled
// order is a no-op so retries are safe.
func (s *Service) CancelOrder(ctx context.Context, orderID, requestingUserID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load order", Err: err}
	}
	// An order belonging to someone else is reported as missing, not forbidden.
	if order == nil || order.UserID != requestingUserID {
		return nil, &domain.NotFoundError{Kind: "order", ID: orderID}
	}

	if order.Status == domain.OrderStatusCancelled {
		return order, nil
	}
	if !Cancellable(order.Status) {
		return nil, &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusCancelled}
	}

	return s.cancel(ctx, order)
}

func (s *Service) cancel(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	// Claim the transition before touching stock. Two cancels racing on the
	// same order both pass the status check above; only the claim winner
	// credits stock, so a retry can never double-credit.
	won, err := s.repo.MarkCancelled(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	if !won {
		current, err := s.repo.GetByID(ctx, order.ID)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "load order", Err: err}
		}
		if current == nil {
			return nil, &domain.NotFoundError{Kind: "order", ID: order.ID}
		}
		// Someone else cancelled between our read and the claim.
		if current.Status == domain.OrderStatusCancelled {
			return current, nil
		}
		return nil, &domain.InvalidTransitionError{From: current.Status, To: domain.OrderStatusCancelled}
	}
	order.Status = domain.OrderStatusCancelled

	var failed error
	for _, item := range order.Items {
		if err := s.ledger.Adjust(ctx, item.ProductID, item.Quantity); err != nil {
			// A lost restock is surfaced, never dropped: stock is now
			// inconsistent with order state until reconciled.
			s.logger.Error("restock failed after cancellation, manual reconciliation required",
				"error", err, "order_id", order.ID, "product_id", item.ProductID)
			failed = errors.Join(failed, fmt.Errorf("restore %d units of product %s: %w",
				item.Quantity, item.ProductID, err))
		}
	}
	if failed != nil {
		return nil, fmt.Errorf("restore stock for order %s: %w", order.ID, failed)
	}

	if order.PaymentStatus == domain.PaymentStatusPaid {
		if err := s.repo.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusRefundPending); err != nil {
			return nil, fmt.Errorf("flag refund for order %s: %w", order.ID, err)
		}
		order.PaymentStatus = domain.PaymentStatusRefundPending
	}

	if s.events != nil {
		event := domain.OrderCancelledEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			UserEmail: order.UserEmail,
			Items:     order.Items,
			Timestamp: s.now(),
		}
		if err := s.events.OrderCancelled(ctx, event); err != nil {
			s.logger.Error("failed to publish order cancelled event", "error", err, "order_id", order.ID)
		}
	}

	s.metrics.OrderCancelled(ctx)
	s.logger.Info("order cancelled", "order_id", order.ID)
	return order, nil
}

// UpdateStatus applies an admin status change after checking the transition
// table. A CANCELLED target routes through the compensating cancel path so
// the stock credit is never skipped.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load order", Err: err}
	}
	if order == nil {
		return nil, &domain.NotFoundError{Kind: "order", ID: orderID}
	}

	if status == domain.OrderStatusCancelled {
		if order.Status == domain.OrderStatusCancelled {
			return order, nil
		}
		if !Cancellable(order.Status) {
			return nil, &domain.InvalidTransitionError{From: order.Status, To: status}
		}
		return s.cancel(ctx, order)
	}

	if err := ValidateTransition(order, status); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	order.Status = status

	s.logger.Info("order status updated", "order_id", orderID, "status", status)
	return order, nil
}

// UpdatePaymentStatus records the payment flag. Payment is not processed
// here; the flag is set by an external payment collaborator.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) (*domain.Order, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown payment status %q", status)
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load order", Err: err}
	}
	if order == nil {
		return nil, &domain.NotFoundError{Kind: "order", ID: orderID}
	}

	if err := s.repo.UpdatePaymentStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	order.PaymentStatus = status

	s.logger.Info("payment status updated", "order_id", orderID, "payment_status", status)
	return order, nil
}

// UpdateTracking sets the tracking number and ships the order in one patch,
// so SHIPPED and its tracking number appear atomically.
func (s *Service) UpdateTracking(ctx context.Context, orderID, trackingNumber string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load order", Err: err}
	}
	if order == nil {
		return nil, &domain.NotFoundError{Kind: "order", ID: orderID}
	}

	order.TrackingNumber = trackingNumber
	if err := ValidateTransition(order, domain.OrderStatusShipped); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTracking(ctx, orderID, trackingNumber); err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatusShipped

	s.logger.Info("tracking set, order shipped", "order_id", orderID, "tracking_number", trackingNumber)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load order", Err: err}
	}
	if order == nil {
		return nil, &domain.NotFoundError{Kind: "order", ID: orderID}
	}
	return order, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown order status %q", status)
	}
	return s.repo.ListByStatus(ctx, status)
}

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

func (s *Service) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.repo.ListRecent(ctx, limit)
}

// Stats is the dashboard rollup: order count and recognized revenue
// (delivered or paid orders).
type Stats struct {
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.repo.TotalRevenue(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Orders: count, Revenue: revenue}, nil
}
