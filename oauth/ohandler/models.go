package ohandler

type ContentType string

const (
	ContentTypeJSON ContentType = "application/json"
	ContentTypeForm ContentType = "application/x-www-form-urlencoded"
)

const (
	stateCookieName = "wechat_oauth_state"
	stateCookieTTL  = 10 * 60 // seconds
)

// ErrorResponse is the body written for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"errcode,omitempty"`
	Message string `json:"message,omitempty"`
}

// MiniProgramLoginRequest is the body of POST /oauth/miniprogram/login.
type MiniProgramLoginRequest struct {
	Code          string `json:"code"`
	EncryptedData string `json:"encryptedData"`
	IV            string `json:"iv"`
}
