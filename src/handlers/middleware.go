package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/username/papertrade/backend/src/database"
	"github.com/username/papertrade/backend/src/logger"
	"github.com/username/papertrade/backend/src/model"
)

const requestIDContextKey contextKey = "requestID"

// ContextualLoggerMiddleware attaches a request-scoped logger carrying a
// generated request ID.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NoCacheMiddleware marks every response as uncacheable. Portfolio and
// balance data must never be served stale from a browser or proxy cache.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware resolves the session cookie to a user identity. The token
// must be a valid JWT and must still have a live row in the sessions table,
// so logout revokes access immediately.
func (h *UserHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger := logger.FromContext(r.Context())

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			ctxLogger.Debug("AuthMiddleware: session cookie missing", "path", r.URL.Path)
			sendJSONError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		tokenString := cookie.Value

		userIDStr, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			ctxLogger.Warn("AuthMiddleware: token validation failed", "path", r.URL.Path, "error", err)
			sendJSONError(w, "Invalid or expired session", http.StatusUnauthorized)
			return
		}

		if _, err := model.GetSessionByToken(r.Context(), database.DB, tokenString); err != nil {
			ctxLogger.Warn("AuthMiddleware: session lookup failed", "path", r.URL.Path, "error", err)
			sendJSONError(w, "Invalid or expired session", http.StatusUnauthorized)
			return
		}

		userIDInt, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			ctxLogger.Error("AuthMiddleware: invalid user ID format in token", "userIDStr", userIDStr, "error", err)
			sendJSONError(w, "Invalid user ID in token", http.StatusInternalServerError)
			return
		}

		enrichedLogger := ctxLogger.With(slog.Int64("userID", userIDInt))
		ctx := logger.ToContext(r.Context(), enrichedLogger)
		ctx = context.WithValue(ctx, userIDContextKey, userIDInt)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
