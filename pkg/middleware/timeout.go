package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Timeout bounds handler time. A handler still running at the deadline
// gets its response replaced by a 503 with a JSON error body.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Context().Err() != nil {
				slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", timeout)
			}
		})
		th := http.TimeoutHandler(logged, timeout, `{"error":"request timeout"}`)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			th.ServeHTTP(w, r)
		})
	}
}
