package oclient

import "strings"

const (
	AuthorizeEndpoint = "https://open.weixin.qq.com/connect/oauth2/authorize"
	QRConnectEndpoint = "https://open.weixin.qq.com/connect/qrconnect"

	ScopeBase     = "snsapi_base"
	ScopeUserInfo = "snsapi_userinfo"
	ScopeLogin    = "snsapi_login"

	wechatRedirectFrag = "#wechat_redirect"
	upperhex           = "0123456789ABCDEF"
)

// AuthorizeURL builds the redirect used inside the WeChat client. scope
// defaults to snsapi_base and state to the empty string.
func AuthorizeURL(appID, redirect, state, scope string) string {
	if scope == "" {
		scope = ScopeBase
	}
	return buildAuthorizeURL(AuthorizeEndpoint, appID, redirect, state, scope)
}

// AuthorizeURLForWebsite builds the QR-code login redirect for websites.
// scope defaults to snsapi_login.
func AuthorizeURLForWebsite(appID, redirect, state, scope string) string {
	if scope == "" {
		scope = ScopeLogin
	}
	return buildAuthorizeURL(QRConnectEndpoint, appID, redirect, state, scope)
}

// buildAuthorizeURL keeps the parameter order WeChat documents; url.Values
// would sort the keys and encode spaces as '+'.
func buildAuthorizeURL(endpoint, appID, redirect, state, scope string) string {
	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteString("?appid=")
	b.WriteString(escape(appID))
	b.WriteString("&redirect_uri=")
	b.WriteString(escape(redirect))
	b.WriteString("&response_type=code&scope=")
	b.WriteString(escape(scope))
	b.WriteString("&state=")
	b.WriteString(escape(state))
	b.WriteString(wechatRedirectFrag)
	return b.String()
}

// escape percent-encodes everything outside A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
