package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/papertrade/backend/src/config"
	"github.com/username/papertrade/backend/src/database"
	"github.com/username/papertrade/backend/src/logger"
	"github.com/username/papertrade/backend/src/models"
	"github.com/username/papertrade/backend/src/security"
	"github.com/username/papertrade/backend/src/services"
)

const testJWTSecret = "handler-test-secret-at-least-32-chars!!"

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{
		StartingCash:  decimal.NewFromInt(10000),
		SessionExpiry: time.Hour,
		JWTSecret:     testJWTSecret,
	}
	os.Exit(m.Run())
}

// stubQuotes serves fixed prices without touching the network.
type stubQuotes struct {
	prices map[string]decimal.Decimal
}

func (s *stubQuotes) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return nil, services.ErrSymbolNotFound
	}
	return &models.Quote{Symbol: symbol, Name: symbol + " Inc.", Price: price}, nil
}

// newTestServer wires the same router main builds, minus the rate limiter,
// backed by a fresh database.
func newTestServer(t *testing.T) (*httptest.Server, *stubQuotes) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp(db))
	database.DB = db
	t.Cleanup(func() {
		db.Close()
		database.DB = nil
	})

	quotes := &stubQuotes{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(150),
		"MSFT": decimal.NewFromInt(300),
	}}

	authService := security.NewAuthService(testJWTSecret, time.Hour)
	portfolioService := services.NewPortfolioService(db, quotes)
	userHandler := NewUserHandler(authService)
	portfolioHandler := NewPortfolioHandler(portfolioService, quotes)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ContextualLoggerMiddleware)
	r.Use(NoCacheMiddleware)

	r.Group(func(r chi.Router) {
		r.Get("/auth/csrf", GetCSRFToken)
		r.Get("/login", FormHandler)
		r.Get("/register", FormHandler)
		r.Get("/logout", userHandler.LogoutUserHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(CSRFMiddleware)
		r.Post("/login", userHandler.LoginUserHandler)
		r.Post("/register", userHandler.RegisterUserHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(CSRFMiddleware)
		r.Use(userHandler.AuthMiddleware)
		r.Get("/", portfolioHandler.HandleGetPortfolio)
		r.Get("/buy", portfolioHandler.HandleBuyForm)
		r.Post("/buy", portfolioHandler.HandleBuy)
		r.Get("/sell", portfolioHandler.HandleSellForm)
		r.Post("/sell", portfolioHandler.HandleSell)
		r.Get("/quote", FormHandler)
		r.Post("/quote", portfolioHandler.HandleQuote)
		r.Get("/history", portfolioHandler.HandleGetHistory)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, quotes
}

// testClient keeps cookies (session and CSRF) across requests like a browser.
type testClient struct {
	t       *testing.T
	client  *http.Client
	baseURL string
	csrf    string
}

func newTestClient(t *testing.T, server *httptest.Server) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := &testClient{
		t:       t,
		client:  &http.Client{Jar: jar},
		baseURL: server.URL,
	}
	c.refreshCSRF()
	return c
}

func (c *testClient) refreshCSRF() {
	resp, err := c.client.Get(c.baseURL + "/auth/csrf")
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(c.t, body.CSRFToken)
	c.csrf = body.CSRFToken
}

func (c *testClient) get(path string) *http.Response {
	resp, err := c.client.Get(c.baseURL + path)
	require.NoError(c.t, err)
	return resp
}

func (c *testClient) post(path string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	require.NoError(c.t, err)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", c.csrf)

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	return body.Error
}

func (c *testClient) register(username, password string) *http.Response {
	return c.post("/register", map[string]string{
		"username":     username,
		"password":     password,
		"confirmation": password,
	})
}

func (c *testClient) login(username, password string) *http.Response {
	return c.post("/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	resp := c.register("alice", "s3cret")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Registration does not log the user in.
	resp = c.get("/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = c.login("alice", "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loginBody struct {
		User struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	decodeBody(t, resp, &loginBody)
	assert.Equal(t, "alice", loginBody.User.Username)

	resp = c.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = c.get("/logout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = c.get("/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRegister_Validation(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	tests := []struct {
		name    string
		payload map[string]string
		wantMsg string
	}{
		{
			name:    "missing username",
			payload: map[string]string{"password": "x", "confirmation": "x"},
			wantMsg: "must provide username",
		},
		{
			name:    "missing password",
			payload: map[string]string{"username": "bob", "confirmation": "x"},
			wantMsg: "must provide password",
		},
		{
			name:    "missing confirmation",
			payload: map[string]string{"username": "bob", "password": "x"},
			wantMsg: "must confirm password",
		},
		{
			name:    "mismatched confirmation",
			payload: map[string]string{"username": "bob", "password": "x", "confirmation": "y"},
			wantMsg: "passwords do not match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := c.post("/register", tt.payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantMsg, errorMessage(t, resp))
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	resp := c.register("alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = c.register("alice", "other")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "username already exists", errorMessage(t, resp))
}

func TestLogin_UniformErrorForBadCredentials(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	resp := c.register("alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	unknownUser := c.login("mallory", "whatever")
	assert.Equal(t, http.StatusForbidden, unknownUser.StatusCode)
	unknownMsg := errorMessage(t, unknownUser)

	wrongPassword := c.login("alice", "wrong")
	assert.Equal(t, http.StatusForbidden, wrongPassword.StatusCode)
	wrongMsg := errorMessage(t, wrongPassword)

	// Identical message for both failure modes.
	assert.Equal(t, unknownMsg, wrongMsg)
}

func TestCSRFRequiredOnStateChangingRequests(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	body, err := json.Marshal(map[string]string{"username": "alice", "password": "x"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	require.NoError(t, err)

	// No X-CSRF-Token header.
	resp, err := c.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNoCacheHeadersOnEveryResponse(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	for _, path := range []string{"/auth/csrf", "/login", "/"} {
		resp := c.get(path)
		assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"), path)
		assert.Equal(t, "no-cache", resp.Header.Get("Pragma"), path)
		resp.Body.Close()
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	for _, path := range []string{"/", "/buy", "/sell", "/quote", "/history"} {
		resp := c.get(path)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestTradeFlowOverHTTP(t *testing.T) {
	server, quotes := newTestServer(t)
	c := newTestClient(t, server)

	resp := c.register("alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = c.login("alice", "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Buy form exposes the cash balance.
	resp = c.get("/buy")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buyForm struct {
		Cash decimal.Decimal `json:"cash"`
	}
	decodeBody(t, resp, &buyForm)
	assert.Equal(t, "10000", buyForm.Cash.String())

	resp = c.post("/buy", map[string]string{"symbol": "aapl", "shares": "10"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var receipt models.TradeReceipt
	decodeBody(t, resp, &receipt)
	assert.Equal(t, "buy", receipt.Side)
	assert.Equal(t, "AAPL", receipt.Symbol)
	assert.Equal(t, "8500", receipt.Cash.String())

	resp = c.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view models.PortfolioView
	decodeBody(t, resp, &view)
	require.Len(t, view.Holdings, 1)
	assert.Equal(t, "AAPL", view.Holdings[0].Symbol)
	assert.Equal(t, int64(10), view.Holdings[0].Quantity)
	assert.Equal(t, "10000", view.TotalValue.String())

	// Sell form lists owned positions.
	resp = c.get("/sell")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sellForm struct {
		Positions map[string]int64 `json:"positions"`
	}
	decodeBody(t, resp, &sellForm)
	assert.Equal(t, int64(10), sellForm.Positions["AAPL"])

	quotes.prices["AAPL"] = decimal.NewFromInt(160)

	resp = c.post("/sell", map[string]string{"symbol": "AAPL", "shares": "10"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &receipt)
	assert.Equal(t, "sell", receipt.Side)
	assert.Equal(t, "10100", receipt.Cash.String())

	resp = c.get("/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []struct {
		Symbol   string `json:"symbol"`
		Quantity int64  `json:"quantity"`
	}
	decodeBody(t, resp, &history)
	require.Len(t, history, 2)
	assert.Equal(t, int64(10), history[0].Quantity)
	assert.Equal(t, int64(-10), history[1].Quantity)
}

func TestTradeErrors(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	resp := c.register("alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = c.login("alice", "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	tests := []struct {
		name       string
		path       string
		payload    map[string]string
		wantStatus int
	}{
		{
			name:       "unknown symbol",
			path:       "/buy",
			payload:    map[string]string{"symbol": "NOPE", "shares": "1"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed symbol",
			path:       "/buy",
			payload:    map[string]string{"symbol": "???", "shares": "1"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "fractional shares",
			path:       "/buy",
			payload:    map[string]string{"symbol": "AAPL", "shares": "1.5"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "cannot afford",
			path:       "/buy",
			payload:    map[string]string{"symbol": "AAPL", "shares": "1000"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "sell shares not owned",
			path:       "/sell",
			payload:    map[string]string{"symbol": "MSFT", "shares": "1"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := c.post(tt.path, tt.payload)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestQuoteEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	resp := c.register("alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = c.login("alice", "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = c.post("/quote", map[string]string{"symbol": "msft"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var quote models.Quote
	decodeBody(t, resp, &quote)
	assert.Equal(t, "MSFT", quote.Symbol)
	assert.Equal(t, "300", quote.Price.String())

	resp = c.post("/quote", map[string]string{"symbol": "NOPE"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "symbol not found", errorMessage(t, resp))
}

func TestLogoutRevokesSessionImmediately(t *testing.T) {
	server, _ := newTestServer(t)
	c := newTestClient(t, server)

	resp := c.register("alice", "s3cret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = c.login("alice", "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Capture the session cookie before logout deletes its row.
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	var sessionCookie *http.Cookie
	for _, cookie := range c.client.Jar.Cookies(serverURL) {
		if cookie.Name == "session_token" {
			sessionCookie = cookie
		}
	}
	require.NotNil(t, sessionCookie)

	resp = c.get("/logout")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Replaying the old JWT fails even though it has not expired.
	req, err := http.NewRequest(http.MethodGet, server.URL+"/", nil)
	require.NoError(t, err)
	req.AddCookie(sessionCookie)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
