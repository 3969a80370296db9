package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNoSession        = errors.New("no session")
	ErrInvalidSignature = errors.New("invalid session signature")
	ErrSessionExpired   = errors.New("session expired")
)

// GetSessionFromCookie reads and verifies the session cookie
func GetSessionFromCookie(r *http.Request, secret []byte) (*SessionData, error) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, ErrNoSession
	}
	return decode(c, secret, time.Now())
}

func decode(c *http.Cookie, secret []byte, now time.Time) (*SessionData, error) {
	value, sig, ok := strings.Cut(c.Value, "|")
	if !ok || strings.Contains(sig, "|") {
		return nil, errors.New("invalid session cookie format")
	}
	if !validateHMAC(value, sig, secret) {
		return nil, ErrInvalidSignature
	}
	jsonData, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var u SessionData
	if err := json.Unmarshal(jsonData, &u); err != nil {
		return nil, err
	}
	if u.OpenID == "" {
		return nil, errors.New("session without openid")
	}
	if now.Unix() > u.ExpiresAt {
		return nil, ErrSessionExpired
	}
	return &u, nil
}
