package session

import (
	"context"
)

type contextKey string

const (
	sessionKey contextKey = "WECHAT_SESSION_DATA"
)
const sessionCookieName = "wechat_session"

// SessionData identifies the WeChat user behind a browser session.
type SessionData struct {
	OpenID    string `json:"openid"`
	ExpiresAt int64  `json:"expires_at"`
	Domain    string `json:"domain,omitempty"`
}

// WithContext attaches session data to context
func (u *SessionData) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionKey, u)
}
