package catalog

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sparecart/order-engine/internal/domain"
)

// productDoc is the Firestore shape of a product. Money is stored as a
// decimal string to avoid binary floating point drift.
type productDoc struct {
	Name             string    `firestore:"name"`
	Price            string    `firestore:"price"`
	Stock            int       `firestore:"stock"`
	ReorderThreshold int       `firestore:"reorderThreshold"`
	ImageURL         string    `firestore:"imageUrl"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d *productDoc) toDomain(id string) (*domain.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return nil, fmt.Errorf("decode price for product %s: %w", id, err)
	}
	return &domain.Product{
		ID:               id,
		Name:             d.Name,
		Price:            price,
		Stock:            d.Stock,
		ReorderThreshold: d.ReorderThreshold,
		ImageURL:         d.ImageURL,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, collection: "products"}
}

func (s *FirestoreStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var doc productDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID)
}

func (s *FirestoreStore) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	// Firestore cannot compare two fields in one query, so filter on the
	// client after a bounded read of active stock levels.
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var doc productDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		if doc.Stock > doc.ReorderThreshold {
			continue
		}

		product, err := doc.toDomain(snap.Ref.ID)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}

	return products, nil
}
