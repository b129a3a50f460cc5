package services

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/papertrade/backend/src/logger"
	"github.com/username/papertrade/backend/src/model"
	"github.com/username/papertrade/backend/src/models"
)

// PortfolioService is the trading core. Every buy/sell runs its three
// mutations (cash update, holding upsert, ledger append) inside one SQL
// transaction; the database is opened with a single connection, so two
// concurrent requests for the same user serialize instead of losing an
// update.
type PortfolioService struct {
	db     *sql.DB
	quotes QuoteService
}

func NewPortfolioService(db *sql.DB, quotes QuoteService) *PortfolioService {
	return &PortfolioService{db: db, quotes: quotes}
}

// parseShareCount validates raw form input for a share quantity.
func parseShareCount(raw string) (int64, error) {
	shares, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, ErrInvalidQuantity
	}
	if shares <= 0 {
		return 0, ErrNonPositiveQuantity
	}
	return shares, nil
}

// GetPortfolioView prices every holding with one quote per distinct symbol.
// An unresolvable quote degrades that row to UNAVAILABLE instead of failing
// the whole view; the user still owns the shares.
func (s *PortfolioService) GetPortfolioView(ctx context.Context, userID int64) (*models.PortfolioView, error) {
	user, err := model.GetUserByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	holdings, err := model.GetHoldingsByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	view := &models.PortfolioView{
		Holdings:   make([]models.HoldingView, 0, len(holdings)),
		Cash:       user.Cash,
		TotalValue: user.Cash,
	}

	// One lookup per distinct symbol per request; the price is reused for
	// every row of that symbol so the view is internally consistent even if
	// the market moves mid-request.
	quotesBySymbol := make(map[string]*models.Quote)
	for _, holding := range holdings {
		row := models.HoldingView{
			Symbol:      holding.Symbol,
			Quantity:    holding.Quantity,
			PriceStatus: models.PriceStatusUnavailable,
		}

		quote, seen := quotesBySymbol[holding.Symbol]
		if !seen {
			quote, err = s.quotes.Lookup(ctx, holding.Symbol)
			if err != nil {
				logger.FromContext(ctx).Warn("Could not price holding, degrading row",
					"symbol", holding.Symbol, "error", err)
				quote = nil
			}
			quotesBySymbol[holding.Symbol] = quote
		}

		if quote != nil {
			row.Name = quote.Name
			row.Price = quote.Price
			row.MarketValue = quote.Price.Mul(decimal.NewFromInt(holding.Quantity)).Round(2)
			row.PriceStatus = models.PriceStatusOK
			view.TotalValue = view.TotalValue.Add(row.MarketValue)
		}

		view.Holdings = append(view.Holdings, row)
	}

	return view, nil
}

// Buy validates in order (symbol resolves, quantity parses, quantity
// positive, cost covered by cash) and then executes atomically.
func (s *PortfolioService) Buy(ctx context.Context, userID int64, symbol, rawShares string) (*models.TradeReceipt, error) {
	quote, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	shares, err := parseShareCount(rawShares)
	if err != nil {
		return nil, err
	}

	cost := quote.Price.Mul(decimal.NewFromInt(shares)).Round(2)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cash, err := model.GetUserCash(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if cash.LessThan(cost) {
		return nil, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	newCash := cash.Sub(cost)

	if err := model.UpdateUserCash(ctx, tx, userID, newCash, now); err != nil {
		return nil, err
	}
	if err := model.InsertTransaction(ctx, tx, &model.Transaction{
		UserID:    userID,
		Symbol:    symbol,
		Quantity:  shares,
		Price:     quote.Price,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	if err := model.AddToHolding(ctx, tx, userID, symbol, shares, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Buy executed",
		"symbol", symbol, "shares", shares, "price", quote.Price.String(), "cost", cost.String())

	return &models.TradeReceipt{
		Side:     "buy",
		Symbol:   symbol,
		Quantity: shares,
		Price:    quote.Price,
		Amount:   cost,
		Cash:     newCash,
	}, nil
}

// Sell validates the quantity the same way Buy does, prices the sale with a
// fresh quote, and executes atomically. Owning fewer shares than requested
// rejects the trade with nothing mutated.
func (s *PortfolioService) Sell(ctx context.Context, userID int64, symbol, rawShares string) (*models.TradeReceipt, error) {
	shares, err := parseShareCount(rawShares)
	if err != nil {
		return nil, err
	}

	// Price is taken at sell time, not carried over from purchase.
	quote, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	proceeds := quote.Price.Mul(decimal.NewFromInt(shares)).Round(2)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	owned, err := model.GetHoldingQuantity(ctx, tx, userID, symbol)
	if err != nil {
		return nil, err
	}
	if owned < shares {
		return nil, ErrInsufficientShares
	}

	cash, err := model.GetUserCash(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	newCash := cash.Add(proceeds)

	if err := model.UpdateUserCash(ctx, tx, userID, newCash, now); err != nil {
		return nil, err
	}
	if err := model.ReduceHolding(ctx, tx, userID, symbol, shares, owned, now); err != nil {
		return nil, err
	}
	if err := model.InsertTransaction(ctx, tx, &model.Transaction{
		UserID:    userID,
		Symbol:    symbol,
		Quantity:  -shares,
		Price:     quote.Price,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Sell executed",
		"symbol", symbol, "shares", shares, "price", quote.Price.String(), "proceeds", proceeds.String())

	return &models.TradeReceipt{
		Side:     "sell",
		Symbol:   symbol,
		Quantity: shares,
		Price:    quote.Price,
		Amount:   proceeds,
		Cash:     newCash,
	}, nil
}

// History returns the user's full ledger, oldest first.
func (s *PortfolioService) History(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return model.GetTransactionsByUser(ctx, s.db, userID)
}

// Positions returns owned quantity per symbol, used to populate the sell form.
func (s *PortfolioService) Positions(ctx context.Context, userID int64) (map[string]int64, error) {
	holdings, err := model.GetHoldingsByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	positions := make(map[string]int64, len(holdings))
	for _, h := range holdings {
		positions[h.Symbol] = h.Quantity
	}
	return positions, nil
}

// Cash returns the user's current balance, used to populate the buy form.
func (s *PortfolioService) Cash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return model.GetUserCash(ctx, s.db, userID)
}
