package security

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderPolicy describes the response headers sent by the tracker. Pages
// and the JSON API get different content security policies.
type HeaderPolicy struct {
	PageCSP string
	APICSP  string

	// APIPrefix selects the requests that receive APICSP and are never cached.
	APIPrefix string

	// HSTSMaxAge in seconds, only sent over TLS. Zero disables HSTS.
	HSTSMaxAge int
}

// DefaultHeaderPolicy returns the policy used by the server. Pages are
// rendered on the server, ship no scripts and only post forms to themselves.
func DefaultHeaderPolicy() HeaderPolicy {
	return HeaderPolicy{
		PageCSP: "default-src 'self'; " +
			"script-src 'none'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; " +
			"object-src 'none'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'",
		APICSP:     "default-src 'none'; frame-ancestors 'none'",
		APIPrefix:  "/api/",
		HSTSMaxAge: 31536000, // 1 year
	}
}

// HeadersMiddleware applies a HeaderPolicy to every response.
type HeadersMiddleware struct {
	policy HeaderPolicy
	hsts   string
}

func NewHeadersMiddleware(policy HeaderPolicy) *HeadersMiddleware {
	h := &HeadersMiddleware{policy: policy}
	if policy.HSTSMaxAge > 0 {
		h.hsts = fmt.Sprintf("max-age=%d; includeSubDomains", policy.HSTSMaxAge)
	}
	return h
}

// Middleware returns the HTTP middleware function
func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "same-origin")
		headers.Set("Cross-Origin-Opener-Policy", "same-origin")

		if h.isAPI(r) {
			headers.Set("Content-Security-Policy", h.policy.APICSP)
			// balances and amounts change on every mutation
			headers.Set("Cache-Control", "no-store")
		} else if h.policy.PageCSP != "" {
			headers.Set("Content-Security-Policy", h.policy.PageCSP)
		}

		if r.TLS != nil && h.hsts != "" {
			headers.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HeadersMiddleware) isAPI(r *http.Request) bool {
	return h.policy.APIPrefix != "" && h.policy.APICSP != "" &&
		strings.HasPrefix(r.URL.Path, h.policy.APIPrefix)
}

// StaticAssetMiddleware adds caching headers for embedded static files.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, immutable", maxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}
