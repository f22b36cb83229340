package runtime

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID stores id on ctx. HTTP and gRPC entry points share the key so
// logs from either transport carry the same field.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// AcceptRequestID returns the caller's id when it is short and printable,
// otherwise a fresh one.
func AcceptRequestID(raw string) string {
	if raw == "" || len(raw) > 64 {
		return uuid.NewString()
	}
	for _, r := range raw {
		if !(r == '-' || r == '_' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return uuid.NewString()
		}
	}
	return raw
}
