package httpserver

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// allowOrigin accepts the configured dashboard origin. Scheme, host and port
// must match; localhost and the loopback addresses count as one host.
func allowOrigin(r *http.Request, origin string) bool {
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" || origin == "*" {
		return true
	}
	got, err := url.Parse(reqOrigin)
	if err != nil || got.Host == "" {
		return false
	}
	if origin == "" {
		return isLoopback(got.Hostname())
	}
	want, err := url.Parse(origin)
	if err != nil || want.Host == "" {
		return false
	}
	if !strings.EqualFold(got.Scheme, want.Scheme) || got.Port() != want.Port() {
		return false
	}
	if isLoopback(got.Hostname()) && isLoopback(want.Hostname()) {
		return true
	}
	return strings.EqualFold(got.Hostname(), want.Hostname())
}

// OriginOf returns the scheme://host part of rawURL, or "" if it has none.
func OriginOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// headerRequestedWith marks requests made by the dashboard's scripts. A
// cross-site page cannot set it without passing a preflight.
const headerRequestedWith = "X-Requested-With"

// guardWrites rejects state-changing requests from foreign origins and
// requests that a cross-site form or no-cors fetch could have sent.
func guardWrites(allowed func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if !allowed(r) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "origin not allowed"})
				return
			}
			if r.Header.Get(headerRequestedWith) == "" && !isJSON(r) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "missing " + headerRequestedWith + " header"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isJSON(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type, "+headerRequestedWith))
	return err == nil && ct == "application/json"
}

// navigationAllowed admits the popup's redirect to the GET callback. Browsers
// that send fetch metadata must report a top-level navigation, and a
// cross-site one must carry a Referer from an admitted origin.
func navigationAllowed(r *http.Request, allowed func(*http.Request) bool) bool {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" && dest != "document" {
		return false
	}
	if r.Header.Get("Sec-Fetch-Site") != "cross-site" {
		return true
	}
	referer := OriginOf(r.Referer())
	if referer == "" {
		return false
	}
	nav := r.Clone(r.Context())
	nav.Header.Set("Origin", referer)
	return allowed(nav)
}

func cors(allowed func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqOrigin := r.Header.Get("Origin"); reqOrigin != "" && allowed(r) {
				w.Header().Set("Access-Control-Allow-Origin", reqOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+headerRequestedWith)
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
