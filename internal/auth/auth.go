package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type ctxKey int

const keyID ctxKey = 0

// Keyring is a static in-memory API key set for the triage endpoints.
type Keyring struct {
	header string
	keys   []keyPair
}

type keyPair struct {
	id     string
	secret string
}

// NewStatic creates a keyring reading secrets from the given header
// (default "X-API-Key"). pairs maps secret -> key ID.
func NewStatic(header string, pairs map[string]string) *Keyring {
	h := header
	if h == "" {
		h = "X-API-Key"
	}
	k := &Keyring{header: h}
	for secret, id := range pairs {
		if secret != "" && id != "" {
			k.keys = append(k.keys, keyPair{id: id, secret: secret})
		}
	}
	return k
}

// lookup compares in constant time against every configured secret.
func (k *Keyring) lookup(secret string) (string, bool) {
	var matched string
	found := false
	for _, p := range k.keys {
		if subtle.ConstantTimeCompare([]byte(p.secret), []byte(secret)) == 1 {
			matched = p.id
			found = true
		}
	}
	return matched, found
}

// WithKeyID injects the key ID into context.
func WithKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyID, id)
}

// KeyIDFrom extracts the key ID from context (if present).
func KeyIDFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyID)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// Middleware validates the API key and writes JSON errors on failure.
// It skips authentication for any path in skipPaths. An empty keyring
// disables authentication entirely.
func (k *Keyring) Middleware(skipPaths map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if len(k.keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			secret := strings.TrimSpace(r.Header.Get(k.header))
			if secret == "" {
				writeJSON(w, http.StatusUnauthorized, "missing_api_key", "Provide API key in "+k.header)
				return
			}
			id, ok := k.lookup(secret)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, "invalid_api_key", "API key not recognized")
				return
			}
			ctx := WithKeyID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
