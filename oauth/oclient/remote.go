package oclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIBaseURL is the WeChat API host.
const DefaultAPIBaseURL = "https://api.weixin.qq.com"

// DefaultLang is sent to sns/userinfo when the caller does not pick a language.
const DefaultLang = "en"

var _ RemoteAuthClient = &HTTPRemote{}

// HTTPRemote talks to the WeChat sns endpoints over HTTP.
type HTTPRemote struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPRemoteOptions configures an HTTPRemote.
type HTTPRemoteOptions struct {
	// BaseURL overrides DefaultAPIBaseURL.
	BaseURL string

	// HTTPClient is used for every call. Nil means a client with Timeout.
	HTTPClient *http.Client

	// Timeout applies to the default HTTP client (0 = 30s).
	Timeout time.Duration

	Logger *slog.Logger
}

// NewHTTPRemote creates a remote client for the given app credentials.
func NewHTTPRemote(appID, appSecret string, opts HTTPRemoteOptions) *HTTPRemote {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRemote{
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}
}

// ExchangeCode calls sns/oauth2/access_token.
func (h *HTTPRemote) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	q := url.Values{}
	q.Set("appid", h.appID)
	q.Set("secret", h.appSecret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")

	var out TokenResponse
	if err := h.get(ctx, "exchange code", "/sns/oauth2/access_token", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangeSessionCode calls sns/jscode2session.
func (h *HTTPRemote) ExchangeSessionCode(ctx context.Context, jsCode string) (*SessionResponse, error) {
	q := url.Values{}
	q.Set("appid", h.appID)
	q.Set("secret", h.appSecret)
	q.Set("js_code", jsCode)
	q.Set("grant_type", "authorization_code")

	var out SessionResponse
	if err := h.get(ctx, "exchange session code", "/sns/jscode2session", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh calls sns/oauth2/refresh_token.
func (h *HTTPRemote) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	q := url.Values{}
	q.Set("appid", h.appID)
	q.Set("grant_type", "refresh_token")
	q.Set("refresh_token", refreshToken)

	var out TokenResponse
	if err := h.get(ctx, "refresh token", "/sns/oauth2/refresh_token", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchProfile calls sns/userinfo.
func (h *HTTPRemote) FetchProfile(ctx context.Context, accessToken, openID, lang string) (*Profile, error) {
	if lang == "" {
		lang = DefaultLang
	}
	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("openid", openID)
	q.Set("lang", lang)

	var raw json.RawMessage
	if err := h.get(ctx, "fetch profile", "/sns/userinfo", q, &raw); err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &TransportError{Op: "fetch profile", Err: fmt.Errorf("decode response: %w", err)}
	}
	p.Raw = raw
	return &p, nil
}

// VerifyToken calls sns/auth. A nil error means the token is accepted.
func (h *HTTPRemote) VerifyToken(ctx context.Context, accessToken, openID string) error {
	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("openid", openID)
	return h.get(ctx, "verify token", "/sns/auth", q, nil)
}

// get issues the request and decodes the body into out. The provider reports
// failures with HTTP 200 and a non-zero errcode, which become ProviderErrors.
func (h *HTTPRemote) get(ctx context.Context, op, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		h.logger.Debug("wechat request failed", "op", op, "status", resp.StatusCode)
		return &TransportError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var envelope ProviderError
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if envelope.Code != 0 {
		return &ProviderError{Code: envelope.Code, Message: envelope.Message}
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
