package oclient

import (
	"context"
	"sync"
)

// MockRemote provides customizable hooks for testing code that depends on a
// RemoteAuthClient. Calls are counted per operation.
type MockRemote struct {
	ExchangeCodeFunc        func(ctx context.Context, code string) (*TokenResponse, error)
	ExchangeSessionCodeFunc func(ctx context.Context, jsCode string) (*SessionResponse, error)
	RefreshFunc             func(ctx context.Context, refreshToken string) (*TokenResponse, error)
	FetchProfileFunc        func(ctx context.Context, accessToken, openID, lang string) (*Profile, error)
	VerifyTokenFunc         func(ctx context.Context, accessToken, openID string) error

	mu    sync.Mutex
	calls map[string]int
}

// Ensure MockRemote implements RemoteAuthClient
var _ RemoteAuthClient = (*MockRemote)(nil)

// Calls returns how many times op was invoked.
func (m *MockRemote) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of remote calls of any kind.
func (m *MockRemote) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MockRemote) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// ExchangeCode calls ExchangeCodeFunc if set, otherwise returns nil, nil
func (m *MockRemote) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	m.record("ExchangeCode")
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code)
	}
	return nil, nil
}

// ExchangeSessionCode calls ExchangeSessionCodeFunc if set, otherwise returns nil, nil
func (m *MockRemote) ExchangeSessionCode(ctx context.Context, jsCode string) (*SessionResponse, error) {
	m.record("ExchangeSessionCode")
	if m.ExchangeSessionCodeFunc != nil {
		return m.ExchangeSessionCodeFunc(ctx, jsCode)
	}
	return nil, nil
}

// Refresh calls RefreshFunc if set, otherwise returns nil, nil
func (m *MockRemote) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	m.record("Refresh")
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, nil
}

// FetchProfile calls FetchProfileFunc if set, otherwise returns nil, nil
func (m *MockRemote) FetchProfile(ctx context.Context, accessToken, openID, lang string) (*Profile, error) {
	m.record("FetchProfile")
	if m.FetchProfileFunc != nil {
		return m.FetchProfileFunc(ctx, accessToken, openID, lang)
	}
	return nil, nil
}

// VerifyToken calls VerifyTokenFunc if set, otherwise returns nil
func (m *MockRemote) VerifyToken(ctx context.Context, accessToken, openID string) error {
	m.record("VerifyToken")
	if m.VerifyTokenFunc != nil {
		return m.VerifyTokenFunc(ctx, accessToken, openID)
	}
	return nil
}
