package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is the header service clients authenticate with
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key header does not match apiKey
func APIKey(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get(APIKeyHeader))
			if len(provided) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
