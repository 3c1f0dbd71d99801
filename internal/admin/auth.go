package admin

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// requireToken wraps next with a constant-time check of the Authorization
// header against a fixed shared secret. A blank token disables the check
// entirely, for local development against a node with no admin secret
// configured.
func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := sha256.Sum256([]byte(token))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		got := sha256.Sum256([]byte(strings.TrimPrefix(header, bearerPrefix)))
		if !hmac.Equal(got[:], want[:]) {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
