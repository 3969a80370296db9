package oclient

import "context"

// TokenStore persists credentials keyed by openid. Implementations decide
// their own locking; concurrent saves for the same openid are last-write-wins.
type TokenStore interface {
	// GetToken returns the stored credential, or (nil, nil) when there is none.
	GetToken(ctx context.Context, openID string) (*Credential, error)

	// SaveToken upserts the credential for openID.
	SaveToken(ctx context.Context, openID string, cred *Credential) error
}

// RemoteAuthClient performs the calls against the WeChat API.
type RemoteAuthClient interface {
	// ExchangeCode trades an authorization code for an access token.
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)

	// ExchangeSessionCode trades a mini program js_code for a session key.
	ExchangeSessionCode(ctx context.Context, jsCode string) (*SessionResponse, error)

	// Refresh trades a refresh token for a new access token.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// FetchProfile reads the user's profile with a valid access token.
	FetchProfile(ctx context.Context, accessToken, openID, lang string) (*Profile, error)

	// VerifyToken checks whether accessToken is still accepted for openID.
	VerifyToken(ctx context.Context, accessToken, openID string) error
}
