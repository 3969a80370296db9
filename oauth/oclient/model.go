package oclient

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"

	"github.com/Seann-Moser/wechat-oauth/oauth/bizdata"
)

// Credential is the token record issued to a WeChat user. Values are replaced
// wholesale on refresh and never edited in place.
type Credential struct {
	OpenID       string `json:"openid" bson:"openid"`
	UnionID      string `json:"unionid,omitempty" bson:"unionid,omitempty"`
	AccessToken  string `json:"access_token" bson:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty" bson:"refresh_token,omitempty"`
	SessionKey   string `json:"session_key,omitempty" bson:"session_key,omitempty"`
	Scope        string `json:"scope,omitempty" bson:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in" bson:"expires_in"`
	// CreateAt is the unix millisecond timestamp at which the provider
	// response was received.
	CreateAt int64 `json:"create_at" bson:"create_at"`
}

// ValidAt reports whether the access token is usable at now.
func (c *Credential) ValidAt(now time.Time) bool {
	return c.AccessToken != "" && now.UnixMilli() < c.CreateAt+c.ExpiresIn*1000
}

// IsValid checks the credential against the current wall clock.
func (c *Credential) IsValid() bool {
	return c.ValidAt(time.Now())
}

// ExpiresAt is the instant the access token stops being valid.
func (c *Credential) ExpiresAt() time.Time {
	return time.UnixMilli(c.CreateAt + c.ExpiresIn*1000)
}

// Token converts the credential into an oauth2.Token so it can be used with
// oauth2.NewClient and friends.
func (c *Credential) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt(),
	}
	return tok.WithExtra(map[string]interface{}{
		"openid": c.OpenID,
		"scope":  c.Scope,
	})
}

// TokenResponse is the body returned by the code exchange and refresh endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	Scope        string `json:"scope"`
	UnionID      string `json:"unionid,omitempty"`
}

// SessionResponse is the body returned by jscode2session.
type SessionResponse struct {
	SessionKey string `json:"session_key"`
	OpenID     string `json:"openid"`
	UnionID    string `json:"unionid,omitempty"`
}

// Profile is the user record returned by sns/userinfo. Raw keeps the record
// exactly as it was received (or decrypted). Sex arrives as a number or a
// numeric string.
type Profile struct {
	OpenID     string          `json:"openid"`
	UnionID    string          `json:"unionid,omitempty"`
	Nickname   string          `json:"nickname"`
	Sex        bizdata.FlexInt `json:"sex"`
	Province   string          `json:"province"`
	City       string          `json:"city"`
	Country    string          `json:"country"`
	HeadImgURL string          `json:"headimgurl"`
	Privilege  []string        `json:"privilege"`
	Language   string          `json:"language,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// ProfileRequest identifies whose profile to read and in which language.
type ProfileRequest struct {
	OpenID string
	// Lang is one of zh_CN, zh_TW or en. Empty leaves the choice to the
	// remote client.
	Lang string
}

// ByOpenID is the plain form of a ProfileRequest.
func ByOpenID(openID string) ProfileRequest {
	return ProfileRequest{OpenID: openID}
}

// CodeRequest carries an authorization code and, for mini programs, the
// encrypted user payload sent by the client.
type CodeRequest struct {
	Code          string `json:"code"`
	Lang          string `json:"lang,omitempty"`
	EncryptedData string `json:"encryptedData,omitempty"`
	IV            string `json:"iv,omitempty"`
}
