package utils

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetOrigin(t *testing.T) {
	tests := []struct {
		name          string
		originHeader  string
		refererHeader string
		want          string
	}{
		{"no headers", "", "", ""},
		{"only Origin", "https://foo.example", "", "https://foo.example"},
		{"only Referer", "", "https://bar.example/path", "https://bar.example/path"},
		{"both headers (Origin wins)", "https://foo.example", "https://bar.example/path", "https://foo.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{Header: make(http.Header)}
			if tt.originHeader != "" {
				req.Header.Set("Origin", tt.originHeader)
			}
			if tt.refererHeader != "" {
				req.Header.Set("Referer", tt.refererHeader)
			}

			got := getOrigin(req)
			if got != tt.want {
				t.Errorf("getOrigin() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestGetDomain(t *testing.T) {
	tests := []struct {
		name          string
		originHeader  string
		refererHeader string
		want          string
	}{
		{"empty origin", "", "", ""},
		{"simple host", "example.com", "", "example.com"},
		{"single-label", "localhost", "", "localhost"},
		{"with port", "http://localhost:3000", "", "localhost"},
		{"one subdomain", "https://api.example.com", "", "example.com"},
		{"deep subdomains", "a.b.c.example.co.uk", "", "example.co.uk"},
		{"multi-label suffix", "https://wx.example.com.cn", "", "example.com.cn"},
		{"ip address", "http://127.0.0.1:8080", "", "127.0.0.1"},
		{"use Referer fallback", "", "https://sub.test.org/path", "test.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{Header: make(http.Header)}
			if tt.originHeader != "" {
				req.Header.Set("Origin", tt.originHeader)
			}
			if tt.refererHeader != "" {
				req.Header.Set("Referer", tt.refererHeader)
			}
			if got := GetDomain(req); got != tt.want {
				t.Errorf("GetDomain() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestCallbackURL(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
		tls     bool
		path    string
		want    string
	}{
		{"plain http", "http://localhost:8080/oauth/authorize", nil, false, "/oauth/callback", "http://localhost:8080/oauth/callback"},
		{"tls", "https://example.com/oauth/authorize", nil, true, "/oauth/callback", "https://example.com/oauth/callback"},
		{"path without slash", "http://example.com/", nil, false, "cb", "http://example.com/cb"},
		{"forwarded proto", "http://internal:8080/", map[string]string{"X-Forwarded-Proto": "https"}, false, "/cb", "https://internal:8080/cb"},
		{"forwarded host", "http://internal:8080/", map[string]string{"X-Forwarded-Host": "wx.example.com"}, false, "/cb", "https://wx.example.com/cb"},
		{"forwarded both", "http://internal:8080/", map[string]string{"X-Forwarded-Host": "wx.example.com, proxy", "X-Forwarded-Proto": "http"}, false, "/cb", "http://wx.example.com/cb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			} else {
				req.TLS = nil
			}
			if got := CallbackURL(req, tt.path); got != tt.want {
				t.Errorf("CallbackURL() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestIsSecure(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/", nil)
	if IsSecure(req) {
		t.Error("plain http request reported secure")
	}
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !IsSecure(req) {
		t.Error("forwarded https request reported insecure")
	}
}
