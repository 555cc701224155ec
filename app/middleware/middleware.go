package appMiddleware

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// MethodOverride lets HTML forms send PUT, PATCH and DELETE through a POST
// with a "_method" field or an X-HTTP-Method-Override header. It must run
// before routing.
func MethodOverride(next http.Handler) http.Handler {
	return handlers.HTTPMethodOverrideHandler(next)
}

// SecureHeaders sets the response headers every HTML page should carry.
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
