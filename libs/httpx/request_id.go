package httpx

import (
	"context"
	"net/http"

	"github.com/md-rashed-zaman/frontdesk/libs/runtime"
)

const RequestIDHeader = "X-Request-Id"

func RequestIDFromContext(ctx context.Context) string {
	return runtime.RequestID(ctx)
}

// WithRequestID echoes a usable X-Request-Id or mints one.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := runtime.AcceptRequestID(r.Header.Get(RequestIDHeader))
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(runtime.WithRequestID(r.Context(), id)))
	})
}
