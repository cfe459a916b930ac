package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sparecart/order-engine/internal/domain"
)

// PostgresRepository stores the aggregate across orders and order_items rows.
// Creation uses a transaction so the aggregate appears all at once; every
// later mutation is a single-row patch.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "create order", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var address []byte
	if order.ShippingAddress != nil {
		address, err = json.Marshal(order.ShippingAddress)
		if err != nil {
			return fmt.Errorf("marshal shipping address: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, user_email, subtotal, tax, shipping_cost, total,
			status, payment_status, shipping_address, tracking_number,
			created_at, updated_at, estimated_delivery
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, $13)
	`, order.ID, order.UserID, order.UserEmail, order.Subtotal, order.Tax,
		order.ShippingCost, order.Total, order.Status, order.PaymentStatus,
		address, order.TrackingNumber, order.CreatedAt, order.EstimatedDelivery)
	if err != nil {
		return &domain.PersistenceError{Op: "create order", Err: err}
	}

	for position, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, product_name, product_image,
				quantity, unit_price, line_total
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New().String(), order.ID, position, item.ProductID, item.ProductName,
			item.ProductImage, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return &domain.PersistenceError{Op: "create order items", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "create order", Err: err}
	}
	return nil
}

const orderColumns = `
	id, user_id, user_email, subtotal, tax, shipping_cost, total,
	status, payment_status, shipping_address, tracking_number,
	created_at, updated_at, estimated_delivery
`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	var address []byte

	err := row.Scan(&order.ID, &order.UserID, &order.UserEmail, &order.Subtotal,
		&order.Tax, &order.ShippingCost, &order.Total, &order.Status,
		&order.PaymentStatus, &address, &order.TrackingNumber,
		&order.CreatedAt, &order.UpdatedAt, &order.EstimatedDelivery)
	if err != nil {
		return nil, err
	}

	if len(address) > 0 {
		order.ShippingAddress = &domain.ShippingAddress{}
		if err := json.Unmarshal(address, order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}

	return order, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, product_image, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.ProductImage,
			&item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, seq ASC
	`, userID)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		ORDER BY created_at DESC, seq ASC
	`, status)
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	// seq preserves insertion order among orders created in the same instant,
	// keeping the descending-recency sort stable.
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC, seq ASC
		LIMIT $1
	`, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, product_image, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.ProductName,
			&item.ProductImage, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *orderMap[id])
	}

	return result, nil
}

// MarkCancelled claims the cancellation with a guarded update. At most one
// racing caller sees a row affected.
func (r *PostgresRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)
	`, domain.OrderStatusCancelled, id, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if err != nil {
		return false, &domain.PersistenceError{Op: "cancel order", Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, &domain.PersistenceError{Op: "cancel order", Err: err}
	}
	return rows == 1, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	return r.patch(ctx, id, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
}

func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	return r.patch(ctx, id, `
		UPDATE orders SET payment_status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
}

func (r *PostgresRepository) UpdateTracking(ctx context.Context, id, trackingNumber string) error {
	return r.patch(ctx, id, `
		UPDATE orders SET tracking_number = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`, trackingNumber, domain.OrderStatusShipped, id)
}

func (r *PostgresRepository) patch(ctx context.Context, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &domain.PersistenceError{Op: "patch order", Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "patch order", Err: err}
	}

	if rowsAffected == 0 {
		return &domain.NotFoundError{Kind: "order", ID: id}
	}
	return nil
}

func (r *PostgresRepository) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	var revenue decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM orders
		WHERE status = $1 OR payment_status = $2
	`, domain.OrderStatusDelivered, domain.PaymentStatusPaid).Scan(&revenue)
	if err != nil {
		return decimal.Zero, err
	}
	return revenue, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
