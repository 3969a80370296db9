package ohandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/Seann-Moser/wechat-oauth/oauth/bizdata"
	"github.com/Seann-Moser/wechat-oauth/oauth/oclient"
	"github.com/Seann-Moser/wechat-oauth/session"
	"github.com/Seann-Moser/wechat-oauth/utils"
)

// DefaultCallbackPath is where WeChat sends the user back with a code.
const DefaultCallbackPath = "/oauth/callback"

// Options configures a Handler.
type Options struct {
	CallbackPath string
	ContentType  ContentType
	Logger       *slog.Logger
}

// Handler serves the WeChat login endpoints on top of a Manager.
type Handler struct {
	manager      *oclient.Manager
	sessions     *session.Client
	callbackPath string
	contentType  ContentType
	logger       *slog.Logger
}

// NewHandler builds a Handler, filling unset options with
// DefaultCallbackPath, JSON responses and slog.Default.
func NewHandler(manager *oclient.Manager, sessions *session.Client, opts Options) *Handler {
	if opts.CallbackPath == "" {
		opts.CallbackPath = DefaultCallbackPath
	}
	if opts.ContentType == "" {
		opts.ContentType = ContentTypeJSON
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		manager:      manager,
		sessions:     sessions,
		callbackPath: opts.CallbackPath,
		contentType:  opts.ContentType,
		logger:       opts.Logger,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/authorize", h.Authorize)
	mux.HandleFunc("GET "+h.callbackPath, h.Callback)
	mux.Handle("GET /oauth/profile", h.sessions.Middleware(http.HandlerFunc(h.Profile)))
	mux.HandleFunc("POST /oauth/miniprogram/login", h.MiniProgramLogin)
	mux.HandleFunc("POST /oauth/logout", h.Logout)
	return mux
}

// Authorize redirects the browser to WeChat. website=1 selects the QR-code
// login page instead of the in-client authorize page.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		Secure:   utils.IsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})

	redirect := utils.CallbackURL(r, h.callbackPath)
	var target string
	if q.Get("website") == "1" {
		target = h.manager.AuthorizeURLForWebsite(redirect, state, q.Get("scope"))
	} else {
		target = h.manager.AuthorizeURL(redirect, state, q.Get("scope"))
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
}

// Callback completes the code flow started by Authorize. Mini programs log in
// through MiniProgramLogin, so the callback is not served for them.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.manager.MiniProgram() {
		h.writeStatus(w, r, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "code flow is not enabled for mini programs"})
		return
	}
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		// The user declined authorization.
		h.writeStatus(w, r, http.StatusBadRequest, ErrorResponse{Error: "access_denied", Message: "missing code"})
		return
	}
	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		h.writeStatus(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_state"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})

	profile, err := h.manager.FetchProfileByCode(r.Context(), oclient.CodeRequest{Code: code, Lang: q.Get("lang")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.sessions.Issue(w, r, profile.OpenID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("user authorized", "openid", profile.OpenID)
	h.write(w, r, profile)
}

// Profile returns the profile of the session user.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := session.GetSession(r.Context())
	if err != nil {
		h.writeStatus(w, r, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	profile, err := h.manager.FetchProfile(r.Context(), oclient.ProfileRequest{OpenID: u.OpenID, Lang: r.URL.Query().Get("lang")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, profile)
}

// MiniProgramLogin exchanges a wx.login code and decrypts the user payload.
func (h *Handler) MiniProgramLogin(w http.ResponseWriter, r *http.Request) {
	if !h.manager.MiniProgram() {
		h.writeStatus(w, r, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "mini program login is not enabled"})
		return
	}
	var req MiniProgramLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.writeStatus(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
		return
	}
	profile, err := h.manager.FetchProfileByCode(r.Context(), oclient.CodeRequest{
		Code:          req.Code,
		EncryptedData: req.EncryptedData,
		IV:            req.IV,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.sessions.Issue(w, r, profile.OpenID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, profile)
}

// Logout clears the session cookie. It succeeds whether or not a session
// was present.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps the manager's error kinds onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		nce *oclient.NoCredentialError
		pe  *oclient.ProviderError
		te  *oclient.TransportError
		de  *bizdata.DecryptionError
		se  *oclient.StoreError
	)
	switch {
	case errors.As(err, &nce):
		h.writeStatus(w, r, http.StatusUnauthorized, ErrorResponse{Error: "authorization_required", Message: nce.Error()})
	case errors.As(err, &pe):
		h.logger.Warn("wechat rejected request", "errcode", pe.Code, "errmsg", pe.Message)
		h.writeStatus(w, r, http.StatusBadGateway, ErrorResponse{Error: "provider_error", Code: pe.Code, Message: pe.Message})
	case errors.As(err, &te):
		h.logger.Error("wechat request failed", "op", te.Op, "error", te.Err)
		h.writeStatus(w, r, http.StatusGatewayTimeout, ErrorResponse{Error: "upstream_unavailable"})
	case errors.As(err, &de):
		h.writeStatus(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_encrypted_data"})
	case errors.As(err, &se):
		h.logger.Error("token store failed", "op", se.Op, "openid", se.OpenID, "error", se.Err)
		h.writeStatus(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		h.writeStatus(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, data interface{}) {
	h.writeStatus(w, r, http.StatusOK, data)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := h.writeResponse(w, r, status, data); err != nil {
		h.logger.Error("write response", "path", r.URL.Path, "error", err)
	}
}

// writeResponse serializes `data` either as JSON or as URL-encoded form data,
// following the request Content-Type and falling back to h.contentType.
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) error {
	responseType := h.contentType
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		switch ContentType(mt) {
		case ContentTypeJSON, ContentTypeForm:
			responseType = ContentType(mt)
		}
	}
	switch responseType {
	case ContentTypeJSON:
		w.Header().Set("Content-Type", string(ContentTypeJSON))
		w.WriteHeader(status)
		return json.NewEncoder(w).Encode(data)

	case ContentTypeForm:
		// marshal→map→url.Values→string
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("form-encode marshal: %w", err)
		}
		var m map[string]interface{}
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("form-encode unmarshal: %w", err)
		}
		vals := url.Values{}
		for k, v := range m {
			if list, ok := v.([]interface{}); ok {
				for _, item := range list {
					vals.Add(k, fmt.Sprintf("%v", item))
				}
				continue
			}
			vals.Set(k, fmt.Sprintf("%v", v))
		}
		w.Header().Set("Content-Type", string(ContentTypeForm))
		w.WriteHeader(status)
		_, err = w.Write([]byte(vals.Encode()))
		return err

	default:
		return fmt.Errorf("unsupported response type: %s", responseType)
	}
}
