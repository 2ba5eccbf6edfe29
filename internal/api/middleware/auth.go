package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireSyncSecret guards endpoints meant for the external cron trigger.
// Requests must carry "Authorization: Bearer <secret>". When no secret is
// configured the endpoint is disabled entirely.
func RequireSyncSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Sync endpoint is not configured")
				return
			}
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "Invalid or missing sync secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
