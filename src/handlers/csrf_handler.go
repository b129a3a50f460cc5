package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/username/papertrade/backend/src/logger"
)

const csrfCookieName = "csrf_token"

// GetCSRFToken issues a double-submit token: the client echoes the value
// back in the X-CSRF-Token header on state-changing requests.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := generateRandomToken()

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		MaxAge:   3600,
	})

	w.Header().Set("X-CSRF-Token", token)
	sendJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func generateRandomToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		logger.L.Error("Error generating random bytes for CSRF token", "error", err)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.StdEncoding.EncodeToString(b)
}

// CSRFMiddleware enforces the double-submit check on methods that change
// state. Safe methods pass through untouched.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get("X-CSRF-Token")
		cookie, errCookie := r.Cookie(csrfCookieName)

		if headerToken != "" && errCookie == nil && headerToken == cookie.Value {
			next.ServeHTTP(w, r)
			return
		}

		logger.FromContext(r.Context()).Warn("CSRF validation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"headerTokenPresent", headerToken != "",
			"cookiePresent", errCookie == nil,
		)
		http.Error(w, "CSRF token validation failed", http.StatusForbidden)
	})
}
