package oclient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/Seann-Moser/wechat-oauth/oauth/bizdata"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// AppID is checked against the watermark of decrypted mini program data
	// and used when building authorize URLs.
	AppID string

	// MiniProgram switches FetchProfileByCode to the jscode2session flow.
	MiniProgram bool

	// Logger for debug/warn messages (nil uses slog.Default()).
	Logger *slog.Logger

	// Now overrides the clock (nil uses time.Now).
	Now func() time.Time
}

// Manager obtains credentials, keeps them fresh and reads user profiles.
// It holds no per-user state; everything lives in the TokenStore.
type Manager struct {
	appID       string
	miniProgram bool
	remote      RemoteAuthClient
	store       TokenStore
	logger      *slog.Logger
	now         func() time.Time

	// refreshes collapses concurrent refreshes of the same openid.
	refreshes singleflight.Group
}

// NewManager creates a Manager. A nil store falls back to a MemoryStore.
func NewManager(remote RemoteAuthClient, store TokenStore, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if store == nil {
		logger.Warn("no token store configured, credentials are kept in process memory")
		store = NewMemoryStore()
	}
	return &Manager{
		appID:       opts.AppID,
		miniProgram: opts.MiniProgram,
		remote:      remote,
		store:       store,
		logger:      logger,
		now:         now,
	}
}

// AppID returns the configured application id.
func (m *Manager) AppID() string {
	return m.appID
}

// MiniProgram reports whether the manager runs the mini program flow.
func (m *Manager) MiniProgram() bool {
	return m.miniProgram
}

// AuthorizeURL builds the in-client authorize redirect for this app.
func (m *Manager) AuthorizeURL(redirect, state, scope string) string {
	return AuthorizeURL(m.appID, redirect, state, scope)
}

// AuthorizeURLForWebsite builds the QR-code login redirect for this app.
func (m *Manager) AuthorizeURLForWebsite(redirect, state, scope string) string {
	return AuthorizeURLForWebsite(m.appID, redirect, state, scope)
}

// AcquireByCode exchanges an authorization code for a credential and stores it.
func (m *Manager) AcquireByCode(ctx context.Context, code string) (*Credential, error) {
	resp, err := m.remote.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &TransportError{Op: "exchange code", Err: errors.New("empty response")}
	}
	cred := m.fromTokenResponse(resp)
	if err := m.save(ctx, cred); err != nil {
		return nil, err
	}
	m.logger.Debug("acquired credential", "openid", cred.OpenID, "expires_in", cred.ExpiresIn)
	return cred, nil
}

// AcquireSessionByCode exchanges a mini program js_code for a session
// credential and stores it. The credential has no access or refresh token.
func (m *Manager) AcquireSessionByCode(ctx context.Context, code string) (*Credential, error) {
	resp, err := m.remote.ExchangeSessionCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &TransportError{Op: "exchange session code", Err: errors.New("empty response")}
	}
	cred := &Credential{
		OpenID:     resp.OpenID,
		UnionID:    resp.UnionID,
		SessionKey: resp.SessionKey,
		CreateAt:   m.now().UnixMilli(),
	}
	if err := m.save(ctx, cred); err != nil {
		return nil, err
	}
	m.logger.Debug("acquired session credential", "openid", cred.OpenID)
	return cred, nil
}

// Refresh exchanges a refresh token for a new credential and stores it.
// Provider rejections are returned as *ProviderError and never retried.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	return m.refresh(ctx, refreshToken, nil)
}

func (m *Manager) refresh(ctx context.Context, refreshToken string, prev *Credential) (*Credential, error) {
	resp, err := m.remote.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &TransportError{Op: "refresh token", Err: errors.New("empty response")}
	}
	cred := m.fromTokenResponse(resp)
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	if prev != nil {
		if cred.OpenID == "" {
			cred.OpenID = prev.OpenID
		}
		if cred.UnionID == "" {
			cred.UnionID = prev.UnionID
		}
	}
	if err := m.save(ctx, cred); err != nil {
		return nil, err
	}
	m.logger.Debug("refreshed credential", "openid", cred.OpenID, "expires_in", cred.ExpiresIn)
	return cred, nil
}

// GetValidCredential returns a usable credential for openID. A valid stored
// credential is returned without any remote call; an expired one is
// refreshed exactly once.
func (m *Manager) GetValidCredential(ctx context.Context, openID string) (*Credential, error) {
	cred, err := m.store.GetToken(ctx, openID)
	if err != nil {
		return nil, asStoreError("get", openID, err)
	}
	if cred == nil {
		return nil, &NoCredentialError{OpenID: openID}
	}
	if cred.ValidAt(m.now()) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return nil, &ProviderError{Message: MsgRefreshTokenMissing}
	}

	m.logger.Debug("credential expired, refreshing", "openid", openID)
	// The refresh is shared by every caller waiting on openID, so one caller
	// cancelling must not fail the others.
	shared := context.WithoutCancel(ctx)
	v, err, _ := m.refreshes.Do(openID, func() (interface{}, error) {
		// Double-check the store: a flight that just finished may already
		// have saved a fresh credential.
		current, err := m.store.GetToken(shared, openID)
		if err != nil {
			return nil, asStoreError("get", openID, err)
		}
		if current == nil {
			return nil, &NoCredentialError{OpenID: openID}
		}
		if current.ValidAt(m.now()) {
			return current, nil
		}
		if current.RefreshToken == "" {
			return nil, &ProviderError{Message: MsgRefreshTokenMissing}
		}
		return m.refresh(shared, current.RefreshToken, current)
	})
	if err != nil {
		return nil, err
	}
	fresh := *v.(*Credential)
	return &fresh, nil
}

// FetchProfile reads the profile of req.OpenID with a valid access token.
func (m *Manager) FetchProfile(ctx context.Context, req ProfileRequest) (*Profile, error) {
	cred, err := m.GetValidCredential(ctx, req.OpenID)
	if err != nil {
		return nil, err
	}
	p, err := m.remote.FetchProfile(ctx, cred.AccessToken, req.OpenID, req.Lang)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &TransportError{Op: "fetch profile", Err: errors.New("empty response")}
	}
	return p, nil
}

// FetchProfileByCode resolves a user from an authorization code. Mini program
// managers decrypt req.EncryptedData with the session key instead of calling
// sns/userinfo.
func (m *Manager) FetchProfileByCode(ctx context.Context, req CodeRequest) (*Profile, error) {
	if m.miniProgram {
		cred, err := m.AcquireSessionByCode(ctx, req.Code)
		if err != nil {
			return nil, err
		}
		data, err := m.DecryptUserData(cred.SessionKey, req.EncryptedData, req.IV)
		if err != nil {
			return nil, err
		}
		// Payloads such as the phone number one carry no identity of their
		// own; the session exchange is authoritative for it.
		p := ProfileFromUserData(data)
		if p.OpenID == "" {
			p.OpenID = cred.OpenID
		}
		if p.UnionID == "" {
			p.UnionID = cred.UnionID
		}
		return p, nil
	}

	cred, err := m.AcquireByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	return m.FetchProfile(ctx, ProfileRequest{OpenID: cred.OpenID, Lang: req.Lang})
}

// DecryptUserData opens a mini program payload for this app.
func (m *Manager) DecryptUserData(sessionKey, encryptedData, iv string) (*bizdata.UserData, error) {
	data, err := bizdata.Decrypt(m.appID, sessionKey, encryptedData, iv)
	if err != nil {
		var de *bizdata.DecryptionError
		if errors.As(err, &de) {
			m.logger.Warn("rejected mini program payload", "reason", de.Reason)
		}
		return nil, err
	}
	return data, nil
}

// VerifyToken asks the provider whether accessToken is still accepted.
func (m *Manager) VerifyToken(ctx context.Context, openID, accessToken string) error {
	return m.remote.VerifyToken(ctx, accessToken, openID)
}

// TokenSource adapts GetValidCredential to oauth2.TokenSource.
func (m *Manager) TokenSource(ctx context.Context, openID string) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, manager: m, openID: openID}
}

type managerTokenSource struct {
	ctx     context.Context
	manager *Manager
	openID  string
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	cred, err := s.manager.GetValidCredential(s.ctx, s.openID)
	if err != nil {
		return nil, err
	}
	return cred.Token(), nil
}

// ProfileFromUserData maps a decrypted mini program record onto a Profile.
// Raw is carried over untouched.
func ProfileFromUserData(data *bizdata.UserData) *Profile {
	return &Profile{
		OpenID:     data.OpenID,
		UnionID:    data.UnionID,
		Nickname:   data.NickName,
		Sex:        data.Gender,
		Province:   data.Province,
		City:       data.City,
		Country:    data.Country,
		HeadImgURL: data.AvatarURL,
		Language:   data.Language,
		Raw:        data.Raw,
	}
}

func (m *Manager) fromTokenResponse(resp *TokenResponse) *Credential {
	return &Credential{
		OpenID:       resp.OpenID,
		UnionID:      resp.UnionID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
		ExpiresIn:    resp.ExpiresIn,
		CreateAt:     m.now().UnixMilli(),
	}
}

func (m *Manager) save(ctx context.Context, cred *Credential) error {
	if err := m.store.SaveToken(ctx, cred.OpenID, cred); err != nil {
		return asStoreError("save", cred.OpenID, err)
	}
	return nil
}

func asStoreError(op, openID string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, OpenID: openID, Err: err}
}
