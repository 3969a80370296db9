package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Seann-Moser/wechat-oauth/utils"
)

// Client issues and verifies session cookies.
type Client struct {
	ttl    time.Duration
	secret []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewClient constructs a Client
func NewClient(secret []byte, sessionTTL time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ttl:    sessionTTL,
		secret: secret,
		logger: logger,
		now:    time.Now,
	}
}

// Issue starts a session for openID and writes the cookie.
func (c *Client) Issue(w http.ResponseWriter, r *http.Request, openID string) (*SessionData, error) {
	u := &SessionData{
		OpenID:    openID,
		ExpiresAt: c.now().Add(c.ttl).Unix(),
		Domain:    utils.GetDomain(r),
	}
	if err := SetSessionCookie(w, u, c.secret, utils.IsSecure(r)); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate loads the session from the request cookie and attaches it to
// the returned context.
func (c *Client) Authenticate(r *http.Request) (*SessionData, context.Context, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, r.Context(), ErrNoSession
	}
	u, err := decode(cookie, c.secret, c.now())
	if err != nil {
		return nil, r.Context(), err
	}
	return u, u.WithContext(r.Context()), nil
}

// Middleware rejects requests without a valid session with 401.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ctx, err := c.Authenticate(r)
		if err != nil {
			c.logger.Debug("rejected request without session", "path", r.URL.Path, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
