package httpapi

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// requireAPIKey gates admin endpoints on the X-API-Key header, compared
// against the configured bcrypt hash. No hash configured means the deployment
// runs behind its own gateway auth and the check is skipped.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.apiKeyHash), []byte(key)); err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
