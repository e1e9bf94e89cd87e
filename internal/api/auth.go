package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth gates a handler chain behind the shared API token. The event
// stream additionally accepts the token as a query parameter because
// EventSource clients cannot set headers.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokenMatches(r, token) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenMatches(r *http.Request, token string) bool {
	presented := ""
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		presented = auth[len(prefix):]
	} else if q := r.URL.Query().Get("token"); q != "" {
		presented = q
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
