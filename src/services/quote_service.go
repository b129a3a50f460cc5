package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/papertrade/backend/src/logger"
	"github.com/username/papertrade/backend/src/models"
	"golang.org/x/net/publicsuffix"
)

const quoteUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ShortName          string  `json:"shortName"`
				LongName           string  `json:"longName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

type quoteServiceImpl struct {
	httpClient http.Client
	baseURL    string
	cache      *cache.Cache
}

// NewQuoteService builds the market-data client. Successful lookups are
// cached for cacheTTL so a burst of requests for the same symbol hits the
// upstream source once.
func NewQuoteService(baseURL string, timeout, cacheTTL time.Duration) QuoteService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &quoteServiceImpl{
		httpClient: http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		baseURL: baseURL,
		cache:   cache.New(cacheTTL, 2*cacheTTL),
	}
}

// Lookup resolves a symbol to {symbol, name, price}. The symbol is
// expected to be normalized (uppercase, trimmed) by the caller.
func (s *quoteServiceImpl) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	if cached, found := s.cache.Get(symbol); found {
		quote := cached.(models.Quote)
		return &quote, nil
	}

	quote, err := s.fetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(symbol, *quote)
	return quote, nil
}

func (s *quoteServiceImpl) fetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	quoteURL := fmt.Sprintf("%s/v8/finance/chart/%s", s.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	req.Header.Set("User-Agent", quoteUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.L.Warn("Quote lookup failed", "symbol", symbol, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	// Yahoo answers 404 with a chart error payload for unknown tickers.
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSymbolNotFound
	}
	if resp.StatusCode != http.StatusOK {
		logger.L.Warn("Quote API returned non-OK status", "symbol", symbol, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrQuoteUnavailable, resp.StatusCode)
	}

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrQuoteUnavailable, err)
	}
	if chartData.Chart.Error != nil {
		return nil, ErrSymbolNotFound
	}
	if len(chartData.Chart.Result) == 0 || chartData.Chart.Result[0].Meta.RegularMarketPrice == 0 {
		return nil, ErrSymbolNotFound
	}

	meta := chartData.Chart.Result[0].Meta
	name := meta.ShortName
	if name == "" {
		name = meta.LongName
	}
	if name == "" {
		name = meta.Symbol
	}

	return &models.Quote{
		Symbol: meta.Symbol,
		Name:   name,
		Price:  decimal.NewFromFloat(meta.RegularMarketPrice),
	}, nil
}
