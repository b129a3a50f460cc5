package services

import (
	"context"

	"github.com/username/papertrade/backend/src/models"
)

// QuoteService resolves a ticker symbol to its current price and name.
// Implementations must return ErrSymbolNotFound for unknown symbols and
// ErrQuoteUnavailable when the upstream source cannot be reached.
type QuoteService interface {
	Lookup(ctx context.Context, symbol string) (*models.Quote, error)
}
