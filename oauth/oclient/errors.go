package oclient

import "fmt"

// MsgRefreshTokenMissing is the ProviderError message used when an expired
// credential has no refresh token to fall back on.
const MsgRefreshTokenMissing = "refresh_token missing"

// NoCredentialError means the user never completed authorization. Retrying
// does not help; send the user through the authorize URL again.
type NoCredentialError struct {
	OpenID string
}

func (e *NoCredentialError) Error() string {
	return fmt.Sprintf("no token for %s, please authorize first", e.OpenID)
}

// ProviderError is a rejection reported by WeChat through errcode/errmsg.
type ProviderError struct {
	Code    int    `json:"errcode"`
	Message string `json:"errmsg"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wechat api error %d: %s", e.Code, e.Message)
}

// TransportError means the request to the provider did not complete.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failure of the TokenStore backend.
type StoreError struct {
	Op     string // "get", "save"
	OpenID string
	Err    error
}

func (e *StoreError) Error() string {
	msg := e.Op + " token"
	if e.OpenID != "" {
		msg += " for " + e.OpenID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
