package model

import (
	"context"
	"database/sql"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Trade mutations run against a *sql.Tx so the cash update, holding upsert
// and ledger append commit or roll back together.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
