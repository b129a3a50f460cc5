package models

import "github.com/shopspring/decimal"

// Price status values for a portfolio row.
const (
	PriceStatusOK          = "OK"
	PriceStatusUnavailable = "UNAVAILABLE"
)

// HoldingView is one portfolio row: a holding priced with a live quote.
// When the quote source cannot resolve the symbol the row is still shown
// (the user owns the shares) with PriceStatus UNAVAILABLE and no market
// value contribution.
type HoldingView struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name,omitempty"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
	PriceStatus string          `json:"price_status"`
}

// PortfolioView is the index page payload: all priced holdings plus the
// cash balance and the combined total.
type PortfolioView struct {
	Holdings   []HoldingView   `json:"holdings"`
	Cash       decimal.Decimal `json:"cash"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// TradeReceipt reports an executed buy or sell back to the client.
type TradeReceipt struct {
	Side     string          `json:"side"` // "buy" or "sell"
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"` // cost for buys, proceeds for sells
	Cash     decimal.Decimal `json:"cash"`   // balance after the trade
}
