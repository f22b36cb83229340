package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/frontdesk/libs/httpx"
)

// KeySource resolves RS256 verification keys by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// Verifier accepts HS256 tokens signed with Secret and RS256 tokens whose key
// Keys can resolve. Either may be unset.
type Verifier struct {
	Secret string
	Keys   KeySource
	now    func() time.Time
}

func NewVerifier(secret string, keys KeySource) *Verifier {
	return &Verifier{Secret: secret, Keys: keys, now: time.Now}
}

// Enabled reports whether any verification method is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && (v.Secret != "" || v.Keys != nil)
}

func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	t, err := parse(raw)
	if err != nil {
		return nil, err
	}
	switch t.header.Alg {
	case "HS256":
		if v.Secret == "" {
			return nil, ErrInvalidToken
		}
		err = t.verifyHS256(v.Secret)
	case "RS256":
		if v.Keys == nil {
			return nil, ErrInvalidToken
		}
		key, kerr := v.Keys.Key(ctx, t.header.Kid)
		if kerr != nil {
			return nil, kerr
		}
		rsaKey, ok := asRSA(key)
		if !ok {
			return nil, ErrInvalidToken
		}
		err = t.verifyRS256(rsaKey)
	default:
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if t.expired(v.now()) {
		return nil, ErrInvalidToken
	}
	return &t.claims, nil
}

type claimsKey struct{}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// RequireBearer rejects requests under any of prefixes that lack a valid
// bearer token. CORS preflights pass through.
func RequireBearer(v *Verifier, prefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !v.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || !hasPrefix(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := v.Verify(r.Context(), strings.TrimSpace(raw))
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrInvalidToken) {
					httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				httpx.WriteError(w, http.StatusServiceUnavailable, "token keys unavailable")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func hasPrefix(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
