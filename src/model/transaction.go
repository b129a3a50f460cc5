package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one immutable ledger entry. Quantity is signed: positive
// for buys, negative for sells. Rows are only ever inserted.
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

func InsertTransaction(ctx context.Context, q Querier, txn *Transaction) error {
	query := `
	INSERT INTO transactions (user_id, symbol, quantity, price, created_at)
	VALUES (?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query, txn.UserID, txn.Symbol, txn.Quantity, txn.Price.String(), txn.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	txn.ID = id
	return nil
}

// GetTransactionsByUser returns the full ledger for a user, chronological
// ascending, id as tiebreaker for entries sharing a timestamp.
func GetTransactionsByUser(ctx context.Context, q Querier, userID int64) ([]Transaction, error) {
	query := `
	SELECT id, user_id, symbol, quantity, price, created_at
	FROM transactions
	WHERE user_id = ?
	ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var txn Transaction
		var priceStr string
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Symbol, &txn.Quantity, &priceStr, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.Price, err = decimal.NewFromString(priceStr)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
