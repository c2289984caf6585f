package api

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// allowedOrigin accepts requests without an Origin header, pages served
// from a loopback host on any port, and pages from the bridge's own
// host:port. Hosts are compared exactly, so localhost.example.com is not
// a loopback page.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Host != "" && strings.EqualFold(u.Host, r.Host)
}

// guard rejects state-changing requests from foreign pages. Bodies must be
// JSON, which a cross-site form or text/plain fetch cannot send without a
// preflight.
func guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !allowedOrigin(r) {
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		if r.ContentLength != 0 {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				writeError(w, http.StatusUnsupportedMediaType, "request body must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
