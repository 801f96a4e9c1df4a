package middleware

import (
	"net/http"

	"github.com/Strob0t/agentledger/internal/logger"
)

// HeaderCallerID carries the identity of the participant making the request.
// Authentication happens upstream; the services validate the identity format.
const HeaderCallerID = "X-Caller-ID"

// Caller stores the X-Caller-ID header in the request context.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(HeaderCallerID); id != "" {
			r = r.WithContext(logger.WithCaller(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
