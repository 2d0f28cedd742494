package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsDefaultHeaders = "Content-Type, Authorization"
	corsMaxAge         = "600"
)

// CORSPolicy decides which browser origins may receive credentialed
// responses. It is built once at startup and never mutated afterwards.
//
// Because every allowed response carries Allow-Credentials, the policy always
// echoes the exact requesting origin; the wildcard is forbidden for
// credentialed responses and never emitted.
type CORSPolicy struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewCORSPolicy builds a policy from exact origins plus host-suffix rules for
// deployment platforms (e.g. ".vercel.app" admits any https origin whose host
// ends in vercel.app).
func NewCORSPolicy(origins, suffixes []string) *CORSPolicy {
	exact := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			exact[origin] = struct{}{}
		}
	}

	cleaned := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		suffix = strings.TrimSpace(suffix)
		if suffix == "" {
			continue
		}
		if !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		cleaned = append(cleaned, suffix)
	}

	return &CORSPolicy{exact: exact, suffixes: cleaned}
}

// Allowed reports whether the origin may receive credentialed responses.
func (p *CORSPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme != "https" {
		// Suffix rules exist for hosted platforms, which are https-only.
		return false
	}
	host := parsed.Hostname()
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// Handler applies the policy. Allowed preflights are answered 200 with the
// origin echoed back; disallowed preflights get a bare 403 so the browser
// blocks the real request. Non-preflight requests pass through, gaining CORS
// headers only when the origin is allowed.
func (p *CORSPolicy) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		// The response depends on Origin either way.
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !p.Allowed(origin) {
				w.WriteHeader(http.StatusForbidden)
				return
			}

			headers := r.Header.Get("Access-Control-Request-Headers")
			if headers == "" {
				headers = corsDefaultHeaders
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusOK)
			return
		}

		if p.Allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		next.ServeHTTP(w, r)
	})
}
