package orders

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sparecart/order-engine/internal/domain"
)

// FirestoreRepository stores each order aggregate as one document with items
// embedded, so aggregate creation is atomic even without multi-document
// transactions. Patches touch only the named fields, never the whole
// document, so concurrent patches cannot clobber each other.
type FirestoreRepository struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{
		client:     client,
		collection: "orders",
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type orderItemDoc struct {
	ProductID    string `firestore:"productId"`
	ProductName  string `firestore:"productName"`
	ProductImage string `firestore:"productImage"`
	Quantity     int    `firestore:"quantity"`
	UnitPrice    string `firestore:"unitPrice"`
	LineTotal    string `firestore:"lineTotal"`
}

type shippingAddressDoc struct {
	FullName   string `firestore:"fullName"`
	Phone      string `firestore:"phone"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type orderDoc struct {
	UserID            string              `firestore:"userId"`
	UserEmail         string              `firestore:"userEmail"`
	Items             []orderItemDoc      `firestore:"items"`
	Subtotal          string              `firestore:"subtotal"`
	Tax               string              `firestore:"tax"`
	ShippingCost      string              `firestore:"shippingCost"`
	Total             string              `firestore:"total"`
	Status            string              `firestore:"status"`
	PaymentStatus     string              `firestore:"paymentStatus"`
	ShippingAddress   *shippingAddressDoc `firestore:"shippingAddress,omitempty"`
	TrackingNumber    string              `firestore:"trackingNumber"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	// Firestore truncates timestamps to microseconds; the full nanosecond
	// reading is kept separately so listings can break creation-time ties
	// in insertion order, the role seq plays on the relational side.
	CreatedAtNanos    int64     `firestore:"createdAtNanos"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
	EstimatedDelivery time.Time `firestore:"estimatedDelivery"`
}

func encodeOrder(order *domain.Order) *orderDoc {
	doc := &orderDoc{
		UserID:            order.UserID,
		UserEmail:         order.UserEmail,
		Items:             make([]orderItemDoc, 0, len(order.Items)),
		Subtotal:          order.Subtotal.String(),
		Tax:               order.Tax.String(),
		ShippingCost:      order.ShippingCost.String(),
		Total:             order.Total.String(),
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		TrackingNumber:    order.TrackingNumber,
		CreatedAt:         order.CreatedAt,
		CreatedAtNanos:    order.CreatedAt.UnixNano(),
		UpdatedAt:         order.UpdatedAt,
		EstimatedDelivery: order.EstimatedDelivery,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDoc{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice.String(),
			LineTotal:    item.LineTotal.String(),
		})
	}
	if order.ShippingAddress != nil {
		doc.ShippingAddress = &shippingAddressDoc{
			FullName:   order.ShippingAddress.FullName,
			Phone:      order.ShippingAddress.Phone,
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		}
	}
	return doc
}

func (d *orderDoc) decode(id string) (*domain.Order, error) {
	money := func(field, value string) (decimal.Decimal, error) {
		v, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("decode %s for order %s: %w", field, id, err)
		}
		return v, nil
	}

	subtotal, err := money("subtotal", d.Subtotal)
	if err != nil {
		return nil, err
	}
	tax, err := money("tax", d.Tax)
	if err != nil {
		return nil, err
	}
	shipping, err := money("shippingCost", d.ShippingCost)
	if err != nil {
		return nil, err
	}
	total, err := money("total", d.Total)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:                id,
		UserID:            d.UserID,
		UserEmail:         d.UserEmail,
		Items:             make([]domain.OrderItem, 0, len(d.Items)),
		Subtotal:          subtotal,
		Tax:               tax,
		ShippingCost:      shipping,
		Total:             total,
		Status:            domain.OrderStatus(d.Status),
		PaymentStatus:     domain.PaymentStatus(d.PaymentStatus),
		TrackingNumber:    d.TrackingNumber,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		EstimatedDelivery: d.EstimatedDelivery,
	}
	for _, item := range d.Items {
		unitPrice, err := money("unitPrice", item.UnitPrice)
		if err != nil {
			return nil, err
		}
		lineTotal, err := money("lineTotal", item.LineTotal)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			UnitPrice:    unitPrice,
			LineTotal:    lineTotal,
		})
	}
	if d.ShippingAddress != nil {
		order.ShippingAddress = &domain.ShippingAddress{
			FullName:   d.ShippingAddress.FullName,
			Phone:      d.ShippingAddress.Phone,
			Street:     d.ShippingAddress.Street,
			City:       d.ShippingAddress.City,
			State:      d.ShippingAddress.State,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
		}
	}
	return order, nil
}

func (r *FirestoreRepository) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.client.Collection(r.collection).Doc(order.ID).Create(ctx, encodeOrder(order))
	if err != nil {
		return &domain.PersistenceError{Op: "create order", Err: err}
	}
	return nil
}

func (r *FirestoreRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var doc orderDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	return doc.decode(snap.Ref.ID)
}

func (r *FirestoreRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	query := r.client.Collection(r.collection).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		OrderBy("createdAtNanos", firestore.Asc)
	return r.collect(ctx, query)
}

func (r *FirestoreRepository) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	query := r.client.Collection(r.collection).
		Where("status", "==", string(status)).
		OrderBy("createdAt", firestore.Desc).
		OrderBy("createdAtNanos", firestore.Asc)
	return r.collect(ctx, query)
}

func (r *FirestoreRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	query := r.client.Collection(r.collection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy("createdAtNanos", firestore.Asc).
		Limit(limit)
	return r.collect(ctx, query)
}

func (r *FirestoreRepository) collect(ctx context.Context, query firestore.Query) ([]domain.Order, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	result := []domain.Order{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var doc orderDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		order, err := doc.decode(snap.Ref.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, *order)
	}

	return result, nil
}

// MarkCancelled claims the cancellation inside a transaction: the status is
// re-read and only a PENDING or CONFIRMED order is moved, so racing callers
// cannot both win. The transaction retries on contention.
func (r *FirestoreRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	ref := r.client.Collection(r.collection).Doc(id)

	won := false
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		won = false

		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc struct {
			Status string `firestore:"status"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode status for order %s: %w", id, err)
		}

		switch domain.OrderStatus(doc.Status) {
		case domain.OrderStatusPending, domain.OrderStatusConfirmed:
		default:
			return nil
		}

		won = true
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.OrderStatusCancelled)},
			{Path: "updatedAt", Value: r.now()},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, &domain.NotFoundError{Kind: "order", ID: id}
		}
		return false, &domain.PersistenceError{Op: "cancel order", Err: err}
	}
	return won, nil
}

func (r *FirestoreRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	return r.patch(ctx, id, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: r.now()},
	})
}

func (r *FirestoreRepository) UpdatePaymentStatus(ctx context.Context, id string, paymentStatus domain.PaymentStatus) error {
	return r.patch(ctx, id, []firestore.Update{
		{Path: "paymentStatus", Value: string(paymentStatus)},
		{Path: "updatedAt", Value: r.now()},
	})
}

func (r *FirestoreRepository) UpdateTracking(ctx context.Context, id, trackingNumber string) error {
	return r.patch(ctx, id, []firestore.Update{
		{Path: "trackingNumber", Value: trackingNumber},
		{Path: "status", Value: string(domain.OrderStatusShipped)},
		{Path: "updatedAt", Value: r.now()},
	})
}

func (r *FirestoreRepository) patch(ctx context.Context, id string, updates []firestore.Update) error {
	_, err := r.client.Collection(r.collection).Doc(id).
		Update(ctx, updates, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &domain.NotFoundError{Kind: "order", ID: id}
		}
		return &domain.PersistenceError{Op: "patch order", Err: err}
	}
	return nil
}

// TotalRevenue sums order totals where the order is delivered or already
// paid. Firestore has no server-side sum over a string field, so the totals
// are folded client-side.
func (r *FirestoreRepository) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	delivered := r.client.Collection(r.collection).
		Where("status", "==", string(domain.OrderStatusDelivered))
	revenue, err := r.sumTotals(ctx, delivered, "")
	if err != nil {
		return decimal.Zero, err
	}

	// Paid but not yet delivered; skip delivered docs to avoid double count.
	paid := r.client.Collection(r.collection).
		Where("paymentStatus", "==", string(domain.PaymentStatusPaid))
	sum, err := r.sumTotals(ctx, paid, string(domain.OrderStatusDelivered))
	if err != nil {
		return decimal.Zero, err
	}
	return revenue.Add(sum), nil
}

func (r *FirestoreRepository) sumTotals(ctx context.Context, query firestore.Query, skipStatus string) (decimal.Decimal, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	sum := decimal.Zero
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return decimal.Zero, err
		}

		var doc orderDoc
		if err := snap.DataTo(&doc); err != nil {
			return decimal.Zero, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		if skipStatus != "" && doc.Status == skipStatus {
			continue
		}
		total, err := decimal.NewFromString(doc.Total)
		if err != nil {
			return decimal.Zero, fmt.Errorf("decode total for order %s: %w", snap.Ref.ID, err)
		}
		sum = sum.Add(total)
	}

	return sum, nil
}

func (r *FirestoreRepository) Count(ctx context.Context) (int64, error) {
	results, err := r.client.Collection(r.collection).
		NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, err
	}

	value, ok := results["count"]
	if !ok {
		return 0, fmt.Errorf("count aggregation missing from result")
	}
	count, ok := value.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count aggregation type %T", value)
	}
	return count.GetIntegerValue(), nil
}
