package main

import (
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/papertrade/backend/src/config"
	"github.com/username/papertrade/backend/src/database"
	"github.com/username/papertrade/backend/src/handlers"
	"github.com/username/papertrade/backend/src/logger"
	"github.com/username/papertrade/backend/src/security"
	"github.com/username/papertrade/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("PaperTrade backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		stdlog.Fatal("JWT_SECRET configuration invalid: must be at least 32 characters")
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations()

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.SessionExpiry)
	quoteService := services.NewQuoteService(config.Cfg.QuoteAPIBaseURL, config.Cfg.QuoteTimeout, config.Cfg.QuoteCacheTTL)
	portfolioService := services.NewPortfolioService(database.DB, quoteService)

	userHandler := handlers.NewUserHandler(authService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService, quoteService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(handlers.NoCacheMiddleware)
	r.Use(rateLimitMiddleware)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/auth/csrf", handlers.GetCSRFToken)
		r.Get("/login", handlers.FormHandler)
		r.Get("/register", handlers.FormHandler)
		r.Get("/logout", userHandler.LogoutUserHandler)
	})

	// Public state-changing routes (CSRF-protected)
	r.Group(func(r chi.Router) {
		r.Use(handlers.CSRFMiddleware)
		r.Post("/login", userHandler.LoginUserHandler)
		r.Post("/register", userHandler.RegisterUserHandler)
	})

	// Protected routes (require authentication and CSRF)
	r.Group(func(r chi.Router) {
		r.Use(handlers.CSRFMiddleware)
		r.Use(userHandler.AuthMiddleware)

		r.Get("/", portfolioHandler.HandleGetPortfolio)
		r.Get("/buy", portfolioHandler.HandleBuyForm)
		r.Post("/buy", portfolioHandler.HandleBuy)
		r.Get("/sell", portfolioHandler.HandleSellForm)
		r.Post("/sell", portfolioHandler.HandleSell)
		r.Get("/quote", handlers.FormHandler)
		r.Post("/quote", portfolioHandler.HandleQuote)
		r.Get("/history", portfolioHandler.HandleGetHistory)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
