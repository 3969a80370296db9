package utils

import (
	"fmt"
	"net/http"
	"strings"
)

// IsSecure reports whether the client reached us over https, honouring
// X-Forwarded-Proto from a reverse proxy.
func IsSecure(r *http.Request) bool {
	return scheme(r) == "https"
}

// CallbackURL returns the absolute URL of path on the host the request came
// in on. It is what WeChat redirects back to after authorization.
func CallbackURL(r *http.Request, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", scheme(r), host(r), path)
}

func scheme(r *http.Request) string {
	// Trust X-Forwarded-Proto if set (e.g., behind Nginx)
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.Header.Get("X-Forwarded-Host") != "" || r.TLS != nil {
		return "https"
	}
	return "http"
}

func host(r *http.Request) string {
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		return strings.TrimSpace(strings.Split(fwdHost, ",")[0])
	}
	return r.Host
}
