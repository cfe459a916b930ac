package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sparecart/order-engine/internal/domain"
)

// FirestoreLedger adjusts stock inside a single-document transaction.
// Firestore offers no multi-document transaction guarantee this system relies
// on, so the contract stays per-product: read the document, check the debit
// would not go negative, then apply an increment. The transaction retries on
// contention, which is what serializes concurrent debits.
type FirestoreLedger struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreLedger(client *firestore.Client) *FirestoreLedger {
	return &FirestoreLedger{
		client:     client,
		collection: "products",
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (l *FirestoreLedger) Adjust(ctx context.Context, productID string, delta int) error {
	ref := l.client.Collection(l.collection).Doc(productID)

	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return &domain.NotFoundError{Kind: "product", ID: productID}
			}
			return err
		}

		var doc struct {
			Stock int `firestore:"stock"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode stock for product %s: %w", productID, err)
		}
		current := doc.Stock

		if current+delta < 0 {
			return &domain.InsufficientStockError{
				ProductID: productID,
				Requested: -delta,
				Available: current,
			}
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: firestore.Increment(delta)},
			{Path: "updatedAt", Value: l.now()},
		})
	})
	if err == nil {
		return nil
	}

	// Domain errors pass through untouched; anything else is a store failure.
	var notFound *domain.NotFoundError
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &notFound) || errors.As(err, &insufficient) {
		return err
	}
	return &domain.PersistenceError{Op: "adjust stock", Err: err}
}
