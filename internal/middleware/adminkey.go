package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/agentledger/internal/logger"
)

// HeaderAdminKey carries the plaintext admin key.
const HeaderAdminKey = "X-Admin-Key"

// AdminKey guards admin routes with a bcrypt-hashed key. A request presenting
// the right key acts as adminID. An empty hash disables the routes.
func AdminKey(hash, adminID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				writeAuthError(w, http.StatusForbidden, "admin endpoints disabled")
				return
			}
			key := r.Header.Get(HeaderAdminKey)
			if key == "" {
				writeAuthError(w, http.StatusUnauthorized, "admin key required")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
				writeAuthError(w, http.StatusForbidden, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r.WithContext(logger.WithCaller(r.Context(), adminID)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","kind":"authorization"}`))
}
