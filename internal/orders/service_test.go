package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sparecart/order-engine/internal/domain"
	"github.com/sparecart/order-engine/internal/pricing"
)

// memLedger is an in-memory stock ledger honoring the single-product
// atomicity contract under concurrent use.
type memLedger struct {
	mu         sync.Mutex
	stock      map[string]int
	creditErr  error // injected failure for credits (compensation/restock)
	adjustment int   // total number of successful adjustments
}

func newMemLedger(stock map[string]int) *memLedger {
	return &memLedger{stock: stock}
}

func (l *memLedger) Adjust(ctx context.Context, productID string, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.stock[productID]
	if !ok {
		return &domain.NotFoundError{Kind: "product", ID: productID}
	}
	if delta > 0 && l.creditErr != nil {
		return l.creditErr
	}
	if current+delta < 0 {
		return &domain.InsufficientStockError{ProductID: productID, Requested: -delta, Available: current}
	}

	l.stock[productID] = current + delta
	l.adjustment++
	return nil
}

func (l *memLedger) level(productID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[productID]
}

// memRepo is an in-memory order repository.
type memRepo struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	sequence  []string
	createErr error
	patchErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[string]*domain.Order)}
}

func (r *memRepo) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	clone := *order
	r.orders[order.ID] = &clone
	r.sequence = append(r.sequence, order.ID)
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	clone := *order
	return &clone, nil
}

func (r *memRepo) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.filter(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (r *memRepo) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return r.filter(func(o *domain.Order) bool { return o.Status == status }), nil
}

func (r *memRepo) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	result := r.filter(func(*domain.Order) bool { return true })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memRepo) filter(keep func(*domain.Order) bool) []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.Order{}
	for _, id := range r.sequence {
		if keep(r.orders[id]) {
			result = append(result, *r.orders[id])
		}
	}
	// Most recent first, stable for equal timestamps.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (r *memRepo) MarkCancelled(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.patchErr != nil {
		return false, r.patchErr
	}
	order, ok := r.orders[id]
	if !ok {
		return false, &domain.NotFoundError{Kind: "order", ID: id}
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
		return false, nil
	}
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = order.UpdatedAt.Add(time.Second)
	return true, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	return r.patch(id, func(o *domain.Order) { o.Status = status })
}

func (r *memRepo) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	return r.patch(id, func(o *domain.Order) { o.PaymentStatus = status })
}

func (r *memRepo) UpdateTracking(ctx context.Context, id, trackingNumber string) error {
	return r.patch(id, func(o *domain.Order) {
		o.TrackingNumber = trackingNumber
		o.Status = domain.OrderStatusShipped
	})
}

func (r *memRepo) patch(id string, apply func(*domain.Order)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.patchErr != nil {
		return r.patchErr
	}
	order, ok := r.orders[id]
	if !ok {
		return &domain.NotFoundError{Kind: "order", ID: id}
	}
	apply(order)
	order.UpdatedAt = order.UpdatedAt.Add(time.Second)
	return nil
}

func (r *memRepo) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	revenue := decimal.Zero
	for _, order := range r.orders {
		if order.Status == domain.OrderStatusDelivered || order.PaymentStatus == domain.PaymentStatusPaid {
			revenue = revenue.Add(order.Total)
		}
	}
	return revenue, nil
}

func (r *memRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.orders)), nil
}

// memCatalog resolves products from a fixed set, returning snapshots.
type memCatalog struct {
	products map[string]domain.Product
}

func (c *memCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, ok := c.products[id]
	if !ok {
		return nil, nil
	}
	clone := product
	return &clone, nil
}

// eventRecorder captures published lifecycle events.
type eventRecorder struct {
	mu        sync.Mutex
	placed    []domain.OrderPlacedEvent
	cancelled []domain.OrderCancelledEvent
}

func (e *eventRecorder) OrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.placed = append(e.placed, event)
	return nil
}

func (e *eventRecorder) OrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, event)
	return nil
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	service *Service
	ledger  *memLedger
	repo    *memRepo
	events  *eventRecorder
}

func newFixture(t *testing.T, stock map[string]int, products map[string]domain.Product) *fixture {
	t.Helper()

	ledger := newMemLedger(stock)
	repo := newMemRepo()
	events := &eventRecorder{}

	var counter int
	service := NewService(repo, ledger, &memCatalog{products: products},
		pricing.Config{
			TaxRate:     decimal.RequireFromString("0.0428571428571"),
			ShippingFee: decimal.RequireFromString("2.00"),
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithEventPublisher(events),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("order-%d", counter)
		}),
	)

	return &fixture{service: service, ledger: ledger, repo: repo, events: events}
}

func defaultProducts() map[string]domain.Product {
	return map[string]domain.Product{
		"brake-pad": {ID: "brake-pad", Name: "Brake Pad", Price: decimal.RequireFromString("10.00")},
		"oil-filter": {ID: "oil-filter", Name: "Oil Filter",
			Price: decimal.RequireFromString("5.00"), ImageURL: "https://img.example/oil-filter.png"},
	}
}

func TestPlaceOrder(t *testing.T) {
	t.Run("debits stock and persists a priced pending order", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 10, "oil-filter": 10}, defaultProducts())

		order, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID:    "user-1",
			UserEmail: "user-1@example.com",
			Items: []ItemRequest{
				{ProductID: "brake-pad", Quantity: 2},
				{ProductID: "oil-filter", Quantity: 3},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if order.Status != domain.OrderStatusPending {
			t.Errorf("expected PENDING, got %s", order.Status)
		}
		if order.PaymentStatus != domain.PaymentStatusPending {
			t.Errorf("expected payment PENDING, got %s", order.PaymentStatus)
		}
		if !order.Subtotal.Equal(decimal.RequireFromString("35.00")) {
			t.Errorf("expected subtotal 35.00, got %s", order.Subtotal)
		}
		if !order.Tax.Equal(decimal.RequireFromString("1.50")) {
			t.Errorf("expected tax 1.50, got %s", order.Tax)
		}
		if !order.Total.Equal(decimal.RequireFromString("38.50")) {
			t.Errorf("expected total 38.50, got %s", order.Total)
		}
		if !order.EstimatedDelivery.Equal(fixedNow.Add(7 * 24 * time.Hour)) {
			t.Errorf("expected delivery 7 days out, got %s", order.EstimatedDelivery)
		}
		if order.Items[1].ProductImage != "https://img.example/oil-filter.png" {
			t.Errorf("expected product image snapshot, got %q", order.Items[1].ProductImage)
		}

		if got := f.ledger.level("brake-pad"); got != 8 {
			t.Errorf("expected brake-pad stock 8, got %d", got)
		}
		if got := f.ledger.level("oil-filter"); got != 7 {
			t.Errorf("expected oil-filter stock 7, got %d", got)
		}

		persisted, _ := f.repo.GetByID(context.Background(), order.ID)
		if persisted == nil {
			t.Fatal("order not persisted")
		}
		if len(f.events.placed) != 1 || f.events.placed[0].OrderID != order.ID {
			t.Errorf("expected one placed event for %s", order.ID)
		}
	})

	t.Run("rejects empty order before touching stock", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 10}, defaultProducts())

		_, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "user-1"})
		if !errors.Is(err, domain.ErrEmptyOrder) {
			t.Fatalf("expected ErrEmptyOrder, got %v", err)
		}
		if f.ledger.adjustment != 0 {
			t.Error("stock must not be touched")
		}
	})

	t.Run("rejects non-positive quantity before touching stock", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 10, "oil-filter": 10}, defaultProducts())

		_, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items: []ItemRequest{
				{ProductID: "brake-pad", Quantity: 2},
				{ProductID: "oil-filter", Quantity: 0},
			},
		})
		var invalidQty *domain.InvalidQuantityError
		if !errors.As(err, &invalidQty) {
			t.Fatalf("expected InvalidQuantityError, got %v", err)
		}
		if f.ledger.adjustment != 0 {
			t.Error("validation errors must never require compensation")
		}
	})

	t.Run("all-or-nothing: insufficient stock on a later item restores earlier debits", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 10, "oil-filter": 5}, defaultProducts())

		_, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items: []ItemRequest{
				{ProductID: "brake-pad", Quantity: 2},
				{ProductID: "oil-filter", Quantity: 1000},
			},
		})
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if insufficient.ProductID != "oil-filter" {
			t.Errorf("expected oil-filter in error, got %s", insufficient.ProductID)
		}
		if insufficient.Shortfall() != 995 {
			t.Errorf("expected shortfall 995, got %d", insufficient.Shortfall())
		}

		if got := f.ledger.level("brake-pad"); got != 10 {
			t.Errorf("expected brake-pad stock restored to 10, got %d", got)
		}
		if count, _ := f.repo.Count(context.Background()); count != 0 {
			t.Error("no partial order must be created")
		}
	})

	t.Run("missing product mid-placement restores earlier debits", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 10}, defaultProducts())

		_, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items: []ItemRequest{
				{ProductID: "brake-pad", Quantity: 4},
				{ProductID: "ghost-part", Quantity: 1},
			},
		})
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if got := f.ledger.level("brake-pad"); got != 10 {
			t.Errorf("expected brake-pad stock restored to 10, got %d", got)
		}
	})

	t.Run("persistence failure after debits restores stock", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 10}, defaultProducts())
		f.repo.createErr = &domain.PersistenceError{Op: "create order", Err: errors.New("connection reset")}

		_, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 3}},
		})
		var persistence *domain.PersistenceError
		if !errors.As(err, &persistence) {
			t.Fatalf("expected PersistenceError, got %v", err)
		}
		if got := f.ledger.level("brake-pad"); got != 10 {
			t.Errorf("expected brake-pad stock restored to 10, got %d", got)
		}
	})

	t.Run("failed compensation is surfaced, not swallowed", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 10, "oil-filter": 0}, defaultProducts())
		f.ledger.creditErr = &domain.PersistenceError{Op: "adjust stock", Err: errors.New("store unreachable")}

		_, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items: []ItemRequest{
				{ProductID: "brake-pad", Quantity: 2},
				{ProductID: "oil-filter", Quantity: 1},
			},
		})
		if err == nil {
			t.Fatal("expected error")
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Errorf("original cause must be preserved, got %v", err)
		}
		if !strings.Contains(err.Error(), "compensation incomplete") {
			t.Errorf("compensation failure must be surfaced, got %v", err)
		}
	})
}

func TestCancelOrder(t *testing.T) {
	place := func(t *testing.T, f *fixture, qty int) *domain.Order {
		t.Helper()
		order, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: qty}},
		})
		if err != nil {
			t.Fatalf("place failed: %v", err)
		}
		return order
	}

	t.Run("pending order cancels with stock fully restored", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f, 3)
		if got := f.ledger.level("brake-pad"); got != 2 {
			t.Fatalf("expected stock 2 after placement, got %d", got)
		}

		cancelled, err := f.service.CancelOrder(context.Background(), order.ID, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cancelled.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", cancelled.Status)
		}
		if got := f.ledger.level("brake-pad"); got != 5 {
			t.Errorf("expected stock restored to 5, got %d", got)
		}
		if len(f.events.cancelled) != 1 {
			t.Errorf("expected one cancelled event, got %d", len(f.events.cancelled))
		}
	})

	t.Run("cancelling twice is a no-op, not an error", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f, 3)

		if _, err := f.service.CancelOrder(context.Background(), order.ID, "user-1"); err != nil {
			t.Fatalf("first cancel failed: %v", err)
		}
		again, err := f.service.CancelOrder(context.Background(), order.ID, "user-1")
		if err != nil {
			t.Fatalf("second cancel must be a no-op, got %v", err)
		}
		if again.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", again.Status)
		}
		if got := f.ledger.level("brake-pad"); got != 5 {
			t.Errorf("stock must not be double-credited, got %d", got)
		}
	})

	t.Run("someone else's order is reported missing", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f, 1)

		_, err := f.service.CancelOrder(context.Background(), order.ID, "intruder")
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if got := f.ledger.level("brake-pad"); got != 4 {
			t.Errorf("stock must be untouched, got %d", got)
		}
	})

	t.Run("processing order cannot be cancelled", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f, 1)
		_ = f.repo.UpdateStatus(context.Background(), order.ID, domain.OrderStatusProcessing)

		_, err := f.service.CancelOrder(context.Background(), order.ID, "user-1")
		var invalid *domain.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
	})

	t.Run("paid order is flagged for refund", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f, 1)
		_ = f.repo.UpdatePaymentStatus(context.Background(), order.ID, domain.PaymentStatusPaid)

		cancelled, err := f.service.CancelOrder(context.Background(), order.ID, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cancelled.PaymentStatus != domain.PaymentStatusRefundPending {
			t.Errorf("expected REFUND_PENDING, got %s", cancelled.PaymentStatus)
		}
	})

	t.Run("failed restock is surfaced loudly", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f, 2)
		f.ledger.creditErr = &domain.PersistenceError{Op: "adjust stock", Err: errors.New("store unreachable")}

		_, err := f.service.CancelOrder(context.Background(), order.ID, "user-1")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "restore stock") {
			t.Errorf("lost restock must be surfaced, got %v", err)
		}
		// The cancellation is claimed before the credit, so the order stays
		// CANCELLED and the missing credit is left to reconciliation.
		fresh, _ := f.repo.GetByID(context.Background(), order.ID)
		if fresh.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", fresh.Status)
		}
		if got := f.ledger.level("brake-pad"); got != 3 {
			t.Errorf("expected stock to stay 3 until reconciled, got %d", got)
		}
	})

	t.Run("racing cancels credit stock once", func(t *testing.T) {
		ledger := newMemLedger(map[string]int{"brake-pad": 5})
		repo := &holdReadsRepo{memRepo: newMemRepo(), release: make(chan struct{})}
		events := &eventRecorder{}
		service := NewService(repo, ledger, &memCatalog{products: defaultProducts()},
			pricing.Config{
				TaxRate:     decimal.RequireFromString("0.0428571428571"),
				ShippingFee: decimal.RequireFromString("2.00"),
			},
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			WithEventPublisher(events),
		)

		order, err := service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("place failed: %v", err)
		}

		// Both callers load the PENDING order before either claims the
		// cancellation; only one claim may win.
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.CancelOrder(context.Background(), order.ID, "user-1")
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("cancel %d failed: %v", i, err)
			}
		}
		if got := ledger.level("brake-pad"); got != 5 {
			t.Fatalf("stock must be credited exactly once, got %d (started at 5)", got)
		}
		if len(events.cancelled) != 1 {
			t.Errorf("expected one cancelled event, got %d", len(events.cancelled))
		}
	})
}

// holdReadsRepo blocks every order load until two callers have read, so both
// see the pre-cancellation status before either proceeds.
type holdReadsRepo struct {
	*memRepo
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func (r *holdReadsRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := r.memRepo.GetByID(ctx, id)
	r.mu.Lock()
	r.arrived++
	if r.arrived == 2 {
		close(r.release)
	}
	r.mu.Unlock()
	<-r.release
	return order, err
}

func TestPlaceCancelScenario(t *testing.T) {
	// Product with stock 5: place qty 3, cancel, cancel again.
	f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
	ctx := context.Background()

	order, err := f.service.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if got := f.ledger.level("brake-pad"); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", order.Status)
	}

	if _, err := f.service.CancelOrder(ctx, order.ID, "user-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got := f.ledger.level("brake-pad"); got != 5 {
		t.Fatalf("expected stock 5 after cancel, got %d", got)
	}

	again, err := f.service.CancelOrder(ctx, order.ID, "user-1")
	if err != nil {
		t.Fatalf("repeat cancel failed: %v", err)
	}
	if got := f.ledger.level("brake-pad"); got != 5 {
		t.Fatalf("expected stock to stay 5, got %d", got)
	}
	if again.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", again.Status)
	}
}

func TestConcurrentPlacement(t *testing.T) {
	// Two racing placements of qty 3 against stock 5: exactly one wins.
	f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
				UserID: fmt.Sprintf("user-%d", i),
				Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 3}},
			})
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				conflicted++
			} else {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}

	if succeeded != 1 || conflicted != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", succeeded, conflicted)
	}
	if got := f.ledger.level("brake-pad"); got != 2 {
		t.Fatalf("expected final stock 2, got %d", got)
	}
}

func TestUpdateStatus(t *testing.T) {
	place := func(t *testing.T, f *fixture) *domain.Order {
		t.Helper()
		order, err := f.service.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID: "user-1",
			Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 2}},
		})
		if err != nil {
			t.Fatalf("place failed: %v", err)
		}
		return order
	}

	t.Run("walks the happy path forward", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f)
		ctx := context.Background()

		for _, status := range []domain.OrderStatus{
			domain.OrderStatusConfirmed, domain.OrderStatusProcessing,
		} {
			updated, err := f.service.UpdateStatus(ctx, order.ID, status)
			if err != nil {
				t.Fatalf("transition to %s failed: %v", status, err)
			}
			if updated.Status != status {
				t.Fatalf("expected %s, got %s", status, updated.Status)
			}
		}

		if _, err := f.service.UpdateTracking(ctx, order.ID, "TRK-0001"); err != nil {
			t.Fatalf("tracking failed: %v", err)
		}
		if _, err := f.service.UpdateStatus(ctx, order.ID, domain.OrderStatusDelivered); err != nil {
			t.Fatalf("delivery failed: %v", err)
		}
	})

	t.Run("rejects skipping a step", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f)

		_, err := f.service.UpdateStatus(context.Background(), order.ID, domain.OrderStatusDelivered)
		var invalid *domain.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
	})

	t.Run("rejects shipping without a tracking number", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f)
		ctx := context.Background()
		_, _ = f.service.UpdateStatus(ctx, order.ID, domain.OrderStatusConfirmed)
		_, _ = f.service.UpdateStatus(ctx, order.ID, domain.OrderStatusProcessing)

		_, err := f.service.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped)
		var invalid *domain.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
	})

	t.Run("cancelled target routes through the compensating path", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		order := place(t, f)
		if got := f.ledger.level("brake-pad"); got != 3 {
			t.Fatalf("expected stock 3, got %d", got)
		}

		updated, err := f.service.UpdateStatus(context.Background(), order.ID, domain.OrderStatusCancelled)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", updated.Status)
		}
		if got := f.ledger.level("brake-pad"); got != 5 {
			t.Errorf("admin cancellation must restore stock, got %d", got)
		}
	})

	t.Run("missing order yields NotFoundError", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		_, err := f.service.UpdateStatus(context.Background(), "ghost", domain.OrderStatusConfirmed)
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestUpdateTracking(t *testing.T) {
	t.Run("sets tracking and ships in one step", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		ctx := context.Background()
		order, _ := f.service.PlaceOrder(ctx, PlaceOrderRequest{
			UserID: "user-1",
			Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 1}},
		})
		_, _ = f.service.UpdateStatus(ctx, order.ID, domain.OrderStatusConfirmed)
		_, _ = f.service.UpdateStatus(ctx, order.ID, domain.OrderStatusProcessing)

		updated, err := f.service.UpdateTracking(ctx, order.ID, "TRK-4711")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status != domain.OrderStatusShipped {
			t.Errorf("expected SHIPPED, got %s", updated.Status)
		}
		if updated.TrackingNumber != "TRK-4711" {
			t.Errorf("expected tracking TRK-4711, got %s", updated.TrackingNumber)
		}
	})

	t.Run("rejects shipping straight from pending", func(t *testing.T) {
		f := newFixture(t, map[string]int{"brake-pad": 5}, defaultProducts())
		ctx := context.Background()
		order, _ := f.service.PlaceOrder(ctx, PlaceOrderRequest{
			UserID: "user-1",
			Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 1}},
		})

		_, err := f.service.UpdateTracking(ctx, order.ID, "TRK-4711")
		var invalid *domain.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	f := newFixture(t, map[string]int{"brake-pad": 100}, defaultProducts())
	ctx := context.Background()

	first, _ := f.service.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-1",
		Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 2}},
	})
	if _, err := f.service.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: "user-2",
		Items:  []ItemRequest{{ProductID: "brake-pad", Quantity: 1}},
	}); err != nil {
		t.Fatalf("second place failed: %v", err)
	}

	// Revenue recognizes paid orders and delivered orders, nothing else.
	_ = f.repo.UpdatePaymentStatus(ctx, first.ID, domain.PaymentStatusPaid)

	stats, err := f.service.GetStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Orders != 2 {
		t.Errorf("expected 2 orders, got %d", stats.Orders)
	}

	firstOrder, _ := f.repo.GetByID(ctx, first.ID)
	if !stats.Revenue.Equal(firstOrder.Total) {
		t.Errorf("expected revenue %s, got %s", firstOrder.Total, stats.Revenue)
	}
}
