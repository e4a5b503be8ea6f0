package middleware

import (
	"net/http"
	"time"
)

// RequestRecorder receives HTTP request metrics
type RequestRecorder interface {
	RequestStarted()
	RequestFinished(method, route string, status int, d time.Duration)
}

// MetricsMiddleware измеряет количество, длительность и статусы запросов.
// Должен оборачивать ServeMux напрямую: маршрут берется из r.Pattern,
// который mux выставляет на том же *http.Request
func MetricsMiddleware(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.RequestStarted()
			start := time.Now()

			wrapped := newResponseWriter(w)
			defer func() {
				route := r.Pattern
				if route == "" {
					route = "unmatched"
				}
				rec.RequestFinished(r.Method, route, wrapped.statusCode, time.Since(start))
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}
