package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Holding is the aggregate position of one user in one symbol. The
// (user_id, symbol) pair is the primary key; a row only exists while
// quantity is positive.
type Holding struct {
	UserID    int64     `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func GetHoldingsByUser(ctx context.Context, q Querier, userID int64) ([]Holding, error) {
	query := `
	SELECT user_id, symbol, quantity, created_at, updated_at
	FROM holdings
	WHERE user_id = ?
	ORDER BY symbol`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetHoldingQuantity returns the owned quantity for (user, symbol), or 0
// when no position exists.
func GetHoldingQuantity(ctx context.Context, q Querier, userID int64, symbol string) (int64, error) {
	var quantity int64
	err := q.QueryRowContext(ctx,
		`SELECT quantity FROM holdings WHERE user_id = ? AND symbol = ?`,
		userID, symbol).Scan(&quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return quantity, nil
}

// AddToHolding creates the position or increments an existing one.
func AddToHolding(ctx context.Context, q Querier, userID int64, symbol string, quantity int64, now time.Time) error {
	query := `
	INSERT INTO holdings (user_id, symbol, quantity, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, symbol) DO UPDATE SET
		quantity = quantity + excluded.quantity,
		updated_at = excluded.updated_at`
	_, err := q.ExecContext(ctx, query, userID, symbol, quantity, now, now)
	return err
}

// ReduceHolding decrements the position by quantity, deleting the row when
// it closes entirely. The caller has already verified ownership inside the
// same transaction; owned is passed in to pick between UPDATE and DELETE
// without tripping the CHECK(quantity > 0) constraint.
func ReduceHolding(ctx context.Context, q Querier, userID int64, symbol string, quantity, owned int64, now time.Time) error {
	if owned < quantity {
		return fmt.Errorf("cannot reduce holding %s by %d, only %d owned", symbol, quantity, owned)
	}
	if owned == quantity {
		_, err := q.ExecContext(ctx,
			`DELETE FROM holdings WHERE user_id = ? AND symbol = ?`,
			userID, symbol)
		return err
	}
	_, err := q.ExecContext(ctx,
		`UPDATE holdings SET quantity = quantity - ?, updated_at = ? WHERE user_id = ? AND symbol = ?`,
		quantity, now, userID, symbol)
	return err
}
