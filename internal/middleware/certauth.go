// Package middleware provides HTTP middlewares for channel authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"slices"
)

type ctxKey string

const callerKey ctxKey = "caller"

// CertAuth returns a middleware that enforces mutual TLS on the privileged
// channel.
//
// The Common Name of the client certificate names the calling context
// (page agent, control panel, bridge). When allowed is non-empty, only those
// names are accepted. Paths listed in exempt pass through without a
// certificate.
//
// On success the caller name is stored in the request context and can be
// read downstream with CallerFromContext.
func CertAuth(allowed []string, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(exempt, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
				http.Error(w, "no client certificate provided", http.StatusUnauthorized)
				return
			}
			caller := r.TLS.PeerCertificates[0].Subject.CommonName
			if len(allowed) > 0 && !slices.Contains(allowed, caller) {
				http.Error(w, "caller not allowed", http.StatusForbidden)
				return
			}
			ctx := WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithCaller stores caller in ctx.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext extracts the caller name (Common Name from the client
// certificate) from the request context. Returns an empty string if not found.
func CallerFromContext(ctx context.Context) string {
	val := ctx.Value(callerKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
