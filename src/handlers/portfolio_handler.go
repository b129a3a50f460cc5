package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/papertrade/backend/src/logger"
	"github.com/username/papertrade/backend/src/model"
	"github.com/username/papertrade/backend/src/security/validation"
	"github.com/username/papertrade/backend/src/services"
)

type PortfolioHandler struct {
	portfolioService *services.PortfolioService
	quoteService     services.QuoteService
}

func NewPortfolioHandler(portfolioService *services.PortfolioService, quoteService services.QuoteService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
		quoteService:     quoteService,
	}
}

type tradeRequest struct {
	Symbol string `json:"symbol"`
	Shares string `json:"shares"`
}

// mapTradeError translates service rejections into user-facing statuses.
// Unknown errors are internal failures and stay generic.
func mapTradeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrSymbolNotFound):
		sendJSONError(w, "symbol not found", http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrNonPositiveQuantity),
		errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrInsufficientShares):
		sendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrQuoteUnavailable):
		sendJSONError(w, "quote service unavailable", http.StatusBadGateway)
	default:
		logger.FromContext(r.Context()).Error("Trade operation failed", "error", err)
		sendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeTradeRequest parses and normalizes the symbol/shares form body.
func decodeTradeRequest(w http.ResponseWriter, r *http.Request) (*tradeRequest, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	req.Symbol = validation.NormalizeSymbol(req.Symbol)
	if err := validation.ValidateSymbol(req.Symbol); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// HandleGetPortfolio serves the index view: priced holdings, cash, total.
func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	view, err := h.portfolioService.GetPortfolioView(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to build portfolio view", "error", err)
		sendJSONError(w, "Failed to retrieve portfolio", http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, view)
}

// HandleBuyForm returns the context the buy form renders with.
func (h *PortfolioHandler) HandleBuyForm(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	cash, err := h.portfolioService.Cash(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to read cash balance", "error", err)
		sendJSONError(w, "Failed to retrieve balance", http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{"cash": cash})
}

func (h *PortfolioHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	req, ok := decodeTradeRequest(w, r)
	if !ok {
		return
	}

	receipt, err := h.portfolioService.Buy(r.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		mapTradeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, receipt)
}

// HandleSellForm returns the symbols the user can sell and how many shares
// of each are owned.
func (h *PortfolioHandler) HandleSellForm(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	positions, err := h.portfolioService.Positions(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to read positions", "error", err)
		sendJSONError(w, "Failed to retrieve positions", http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (h *PortfolioHandler) HandleSell(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	req, ok := decodeTradeRequest(w, r)
	if !ok {
		return
	}

	receipt, err := h.portfolioService.Sell(r.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		mapTradeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, receipt)
}

// HandleQuote looks up a single symbol for the quote page.
func (h *PortfolioHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Symbol = validation.NormalizeSymbol(req.Symbol)
	if err := validation.ValidateSymbol(req.Symbol); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := h.quoteService.Lookup(r.Context(), req.Symbol)
	if err != nil {
		mapTradeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, quote)
}

// HandleGetHistory serves the full ledger, oldest entry first.
func (h *PortfolioHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	history, err := h.portfolioService.History(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to read transaction history", "error", err)
		sendJSONError(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.Transaction{}
	}

	sendJSON(w, http.StatusOK, history)
}
