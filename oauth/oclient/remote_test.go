package oclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/wechat-oauth/oauth/bizdata"
)

func newTestRemote(t *testing.T, handler http.HandlerFunc) *HTTPRemote {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPRemote("appid", "secret", HTTPRemoteOptions{BaseURL: srv.URL + "/"})
}

func TestHTTPRemote_ExchangeCode(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sns/oauth2/access_token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "appid", q.Get("appid"))
		assert.Equal(t, "secret", q.Get("secret"))
		assert.Equal(t, "code", q.Get("code"))
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		fmt.Fprint(w, `{"access_token":"ACCESS_TOKEN","expires_in":7200,"refresh_token":"REFRESH_TOKEN","openid":"OPENID","scope":"SCOPE"}`)
	})

	resp, err := remote.ExchangeCode(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "ACCESS_TOKEN", resp.AccessToken)
	assert.Equal(t, int64(7200), resp.ExpiresIn)
	assert.Equal(t, "REFRESH_TOKEN", resp.RefreshToken)
	assert.Equal(t, "OPENID", resp.OpenID)
	assert.Equal(t, "SCOPE", resp.Scope)
}

func TestHTTPRemote_ExchangeSessionCode(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/jscode2session", r.URL.Path)
		assert.Equal(t, "js_code", r.URL.Query().Get("js_code"))
		assert.Equal(t, "authorization_code", r.URL.Query().Get("grant_type"))
		fmt.Fprint(w, `{"session_key":"SESSION_KEY","openid":"OPENID","unionid":"UNIONID"}`)
	})

	resp, err := remote.ExchangeSessionCode(context.Background(), "js_code")
	require.NoError(t, err)
	assert.Equal(t, "SESSION_KEY", resp.SessionKey)
	assert.Equal(t, "OPENID", resp.OpenID)
	assert.Equal(t, "UNIONID", resp.UnionID)
}

func TestHTTPRemote_Refresh(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/oauth2/refresh_token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "refresh_token", q.Get("grant_type"))
		assert.Equal(t, "REFRESH_TOKEN", q.Get("refresh_token"))
		assert.Empty(t, q.Get("secret"))
		fmt.Fprint(w, `{"access_token":"NEW_TOKEN","expires_in":7200,"refresh_token":"REFRESH_TOKEN","openid":"OPENID"}`)
	})

	resp, err := remote.Refresh(context.Background(), "REFRESH_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "NEW_TOKEN", resp.AccessToken)
}

func TestHTTPRemote_FetchProfile(t *testing.T) {
	body := `{"openid":"OPENID","nickname":"NICKNAME","sex":1,"province":"PROVINCE","city":"CITY","country":"COUNTRY","headimgurl":"http://wx.qlogo.cn/x","privilege":["PRIVILEGE1"],"unionid":"UNIONID"}`
	var lang string
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/userinfo", r.URL.Path)
		assert.Equal(t, "ACCESS_TOKEN", r.URL.Query().Get("access_token"))
		assert.Equal(t, "OPENID", r.URL.Query().Get("openid"))
		lang = r.URL.Query().Get("lang")
		fmt.Fprint(w, body)
	})

	p, err := remote.FetchProfile(context.Background(), "ACCESS_TOKEN", "OPENID", "")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
	assert.Equal(t, "NICKNAME", p.Nickname)
	assert.Equal(t, bizdata.FlexInt(1), p.Sex)
	assert.Equal(t, []string{"PRIVILEGE1"}, p.Privilege)
	assert.Equal(t, "UNIONID", p.UnionID)
	assert.JSONEq(t, body, string(p.Raw))

	_, err = remote.FetchProfile(context.Background(), "ACCESS_TOKEN", "OPENID", "zh_CN")
	require.NoError(t, err)
	assert.Equal(t, "zh_CN", lang)
}

func TestHTTPRemote_FetchProfile_SexAsString(t *testing.T) {
	body := `{
		"openid": "OPENID",
		"nickname": "NICKNAME",
		"sex": "1",
		"province": "PROVINCE",
		"city": "CITY",
		"country": "COUNTRY",
		"headimgurl": "http://wx.qlogo.cn/mmopen/g3MonUZtNHkdmzicIlibx6iaFqAc56vxLSUfpb6n5WKSYVY0ChQKkiaJSgQ1dZuTOgvLLrhJbERQQ4eMsv84eavHiaiceqxibJxCfHe/46",
		"privilege": ["PRIVILEGE1", "PRIVILEGE2"]
	}`
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})

	p, err := remote.FetchProfile(context.Background(), "ACCESS_TOKEN", "OPENID", "")
	require.NoError(t, err)
	assert.Equal(t, "OPENID", p.OpenID)
	assert.Equal(t, bizdata.FlexInt(1), p.Sex)
	assert.Equal(t, []string{"PRIVILEGE1", "PRIVILEGE2"}, p.Privilege)
	assert.Equal(t, body, string(p.Raw))
}

func TestHTTPRemote_VerifyToken(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/auth", r.URL.Path)
		if r.URL.Query().Get("access_token") == "ACCESS_TOKEN" {
			fmt.Fprint(w, `{"errcode":0,"errmsg":"ok"}`)
			return
		}
		fmt.Fprint(w, `{"errcode":40003,"errmsg":"invalid openid"}`)
	})

	assert.NoError(t, remote.VerifyToken(context.Background(), "ACCESS_TOKEN", "OPENID"))
	err := remote.VerifyToken(context.Background(), "bad", "OPENID")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 40003, pe.Code)
}

func TestHTTPRemote_ProviderError(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode":40029,"errmsg":"invalid code"}`)
	})

	_, err := remote.ExchangeCode(context.Background(), "code")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 40029, pe.Code)
	assert.Equal(t, "invalid code", pe.Message)
	assert.Equal(t, "wechat api error 40029: invalid code", pe.Error())
}

func TestHTTPRemote_TransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newTestRemote(t, tt.handler)
			_, err := remote.Refresh(context.Background(), "REFRESH_TOKEN")
			var te *TransportError
			require.True(t, errors.As(err, &te), "got %v", err)
			assert.Equal(t, "refresh token", te.Op)
		})
	}
}

func TestHTTPRemote_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	remote := NewHTTPRemote("appid", "secret", HTTPRemoteOptions{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})

	_, err := remote.ExchangeCode(context.Background(), "code")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestHTTPRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	remote := NewHTTPRemote("appid", "secret", HTTPRemoteOptions{BaseURL: addr})

	_, err := remote.ExchangeCode(context.Background(), "code")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}
