package stock

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sparecart/order-engine/internal/domain"
)

// PostgresLedger adjusts stock with a single guarded UPDATE, relying on
// row-level atomicity. The WHERE clause refuses any change that would drive
// stock negative, so concurrent debits for the last units serialize on the
// row lock and exactly one wins.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Adjust(ctx context.Context, productID string, delta int) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
	`, productID, delta)
	if err != nil {
		return &domain.PersistenceError{Op: "adjust stock", Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "adjust stock", Err: err}
	}

	if rowsAffected > 0 {
		return nil
	}

	// Zero rows means either the product is gone or the debit would go
	// negative. Look at the row to tell the two apart.
	var available int
	err = l.db.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1
	`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.NotFoundError{Kind: "product", ID: productID}
		}
		return &domain.PersistenceError{Op: "adjust stock", Err: err}
	}

	return &domain.InsufficientStockError{
		ProductID: productID,
		Requested: -delta,
		Available: available,
	}
}
