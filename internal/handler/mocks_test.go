package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/baasproxy/internal/membership"
	"github.com/hitoshi/baasproxy/internal/supabase"
)

// --- モック定義 ---

type mockAuthService struct {
	getUserFn            func(ctx context.Context, accessToken string) (json.RawMessage, error)
	signInWithPasswordFn func(ctx context.Context, email, password string) (*supabase.AuthResult, error)
	signUpFn             func(ctx context.Context, email, password string) (*supabase.AuthResult, error)
	signOutFn            func(ctx context.Context, accessToken string) error
	signInWithOTPFn      func(ctx context.Context, email, redirectTo string) (*supabase.OTPResult, error)
	oauthURLFn           func(provider, redirectTo string) (*supabase.OAuthResult, error)

	calls int
}

func (m *mockAuthService) GetUser(ctx context.Context, accessToken string) (json.RawMessage, error) {
	m.calls++
	if m.getUserFn != nil {
		return m.getUserFn(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockAuthService) SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthResult, error) {
	m.calls++
	if m.signInWithPasswordFn != nil {
		return m.signInWithPasswordFn(ctx, email, password)
	}
	return &supabase.AuthResult{}, nil
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password string) (*supabase.AuthResult, error) {
	m.calls++
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return &supabase.AuthResult{}, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, accessToken string) error {
	m.calls++
	if m.signOutFn != nil {
		return m.signOutFn(ctx, accessToken)
	}
	return nil
}

func (m *mockAuthService) SignInWithOTP(ctx context.Context, email, redirectTo string) (*supabase.OTPResult, error) {
	m.calls++
	if m.signInWithOTPFn != nil {
		return m.signInWithOTPFn(ctx, email, redirectTo)
	}
	return &supabase.OTPResult{}, nil
}

func (m *mockAuthService) OAuthURL(provider, redirectTo string) (*supabase.OAuthResult, error) {
	m.calls++
	if m.oauthURLFn != nil {
		return m.oauthURLFn(provider, redirectTo)
	}
	return &supabase.OAuthResult{Provider: provider}, nil
}

type mockMembershipService struct {
	checkFn               func(ctx context.Context, email string) (*membership.Status, error)
	hasActiveMembershipFn func(ctx context.Context, email string) bool

	calls int
}

func (m *mockMembershipService) Check(ctx context.Context, email string) (*membership.Status, error) {
	m.calls++
	if m.checkFn != nil {
		return m.checkFn(ctx, email)
	}
	return nil, membership.ErrNotFound
}

func (m *mockMembershipService) HasActiveMembership(ctx context.Context, email string) bool {
	m.calls++
	if m.hasActiveMembershipFn != nil {
		return m.hasActiveMembershipFn(ctx, email)
	}
	return false
}

type mockFunctionInvoker struct {
	invokeFn func(ctx context.Context, name string, body any) (*supabase.FunctionResponse, error)

	calls int
}

func (m *mockFunctionInvoker) InvokeFunction(ctx context.Context, name string, body any) (*supabase.FunctionResponse, error) {
	m.calls++
	if m.invokeFn != nil {
		return m.invokeFn(ctx, name, body)
	}
	return &supabase.FunctionResponse{Status: http.StatusOK, Body: []byte(`{}`)}, nil
}

// --- テストヘルパー ---

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	return body
}
