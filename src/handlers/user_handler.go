package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/username/papertrade/backend/src/config"
	"github.com/username/papertrade/backend/src/database"
	"github.com/username/papertrade/backend/src/logger"
	"github.com/username/papertrade/backend/src/model"
	"github.com/username/papertrade/backend/src/security"
	"github.com/username/papertrade/backend/src/security/validation"
)

type contextKey string

const userIDContextKey contextKey = "userID"

const sessionCookieName = "session_token"

// invalidCredentialsMsg is deliberately identical for unknown usernames and
// wrong passwords so responses cannot be used to enumerate accounts.
const invalidCredentialsMsg = "invalid username and/or password"

type UserHandler struct {
	authService *security.AuthService
}

func NewUserHandler(authService *security.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func sendJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username     string `json:"username"`
		Password     string `json:"password"`
		Confirmation string `json:"confirmation"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Username = validation.SanitizeText(strings.TrimSpace(credentials.Username))

	if credentials.Username == "" {
		sendJSONError(w, "must provide username", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateUsername(credentials.Username); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if credentials.Password == "" {
		sendJSONError(w, "must provide password", http.StatusBadRequest)
		return
	}
	if credentials.Confirmation == "" {
		sendJSONError(w, "must confirm password", http.StatusBadRequest)
		return
	}
	if credentials.Password != credentials.Confirmation {
		sendJSONError(w, "passwords do not match", http.StatusBadRequest)
		return
	}

	_, err := model.GetUserByUsername(r.Context(), database.DB, credentials.Username)
	if err == nil {
		sendJSONError(w, "username already exists", http.StatusConflict)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		logger.L.Error("Error checking username uniqueness", "error", err)
		sendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		logger.L.Error("Failed to hash password", "error", err)
		sendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username: credentials.Username,
		Password: hashedPassword,
		Cash:     config.Cfg.StartingCash,
	}
	if err := user.CreateUser(r.Context(), database.DB); err != nil {
		logger.L.Error("Failed to create user in DB", "error", err)
		sendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User registered", "userID", user.ID)

	// No auto-login; the client is sent to the login form.
	sendJSON(w, http.StatusCreated, map[string]string{
		"message": "Registered successfully. Please log in.",
	})
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		logger.L.Warn("Invalid request body for login", "error", err)
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Username = validation.SanitizeText(strings.TrimSpace(credentials.Username))

	if credentials.Username == "" {
		sendJSONError(w, "must provide username", http.StatusForbidden)
		return
	}
	if credentials.Password == "" {
		sendJSONError(w, "must provide password", http.StatusForbidden)
		return
	}

	user, err := model.GetUserByUsername(r.Context(), database.DB, credentials.Username)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.L.Error("User lookup failed for login", "error", err)
		}
		sendJSONError(w, invalidCredentialsMsg, http.StatusForbidden)
		return
	}

	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Warn("Password check failed for login", "userID", user.ID)
		sendJSONError(w, invalidCredentialsMsg, http.StatusForbidden)
		return
	}

	if err := model.DeleteExpiredSessions(r.Context(), database.DB); err != nil {
		logger.L.Warn("Failed to prune expired sessions", "error", err)
	}

	token, err := h.authService.GenerateToken(fmt.Sprintf("%d", user.ID))
	if err != nil {
		logger.L.Error("Failed to generate session token", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	session := &model.Session{
		UserID:    user.ID,
		Token:     token,
		UserAgent: r.UserAgent(),
		ClientIP:  r.RemoteAddr,
		ExpiresAt: time.Now().UTC().Add(h.authService.SessionExpiry()),
	}
	if err := model.CreateSession(r.Context(), database.DB, session); err != nil {
		logger.L.Error("Failed to create session", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		Expires:  session.ExpiresAt,
	})

	logger.L.Info("User login successful", "userID", user.ID)

	sendJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := model.DeleteSessionByToken(r.Context(), database.DB, cookie.Value); err != nil {
			logger.L.Warn("Failed to delete session on logout", "error", err)
		}
	}

	// Expire the cookie regardless of whether a session existed.
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	sendJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// FormHandler answers GET requests for routes whose form lives entirely in
// the client; it exists so the route table stays complete.
func FormHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{})
}
