package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/baasproxy/internal/middleware"
	"github.com/hitoshi/baasproxy/internal/supabase"
)

var errTransport = errors.New("dial tcp: connection refused")

// --- Session ---

func TestAuthHandler_Session_MissingToken_Returns401WithoutProviderCall(t *testing.T) {
	svc := &mockAuthService{}
	h := NewAuthHandler(svc)

	for _, body := range []string{`{}`, `{"accessToken":""}`, ``} {
		w := httptest.NewRecorder()
		h.Session(w, postJSON("/api/auth/session", body))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("body %q: status = %d, want %d", body, w.Code, http.StatusUnauthorized)
		}
		if got := decodeResponse(t, w)["error"]; got == "" || got == nil {
			t.Errorf("body %q: expected error message", body)
		}
	}
	if svc.calls != 0 {
		t.Errorf("provider calls = %d, want 0", svc.calls)
	}
}

func TestAuthHandler_Session_ValidToken_ReturnsUser(t *testing.T) {
	var gotToken string
	svc := &mockAuthService{
		getUserFn: func(ctx context.Context, accessToken string) (json.RawMessage, error) {
			gotToken = accessToken
			return json.RawMessage(`{"id":"user-1","email":"a@example.com"}`), nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Session(w, postJSON("/api/auth/session", `{"accessToken":"token-abc"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "token-abc" {
		t.Errorf("token = %q, want %q", gotToken, "token-abc")
	}
	user, ok := decodeResponse(t, w)["user"].(map[string]any)
	if !ok {
		t.Fatalf("user should be an object, got %s", w.Body.String())
	}
	if user["id"] != "user-1" {
		t.Errorf("user.id = %v, want %q", user["id"], "user-1")
	}
}

func TestAuthHandler_Session_FallsBackToAuthorizationHeader(t *testing.T) {
	var gotToken string
	svc := &mockAuthService{
		getUserFn: func(ctx context.Context, accessToken string) (json.RawMessage, error) {
			gotToken = accessToken
			return json.RawMessage(`{"id":"user-1"}`), nil
		},
	}
	h := NewAuthHandler(svc)

	req := postJSON("/api/auth/session", `{}`)
	req = req.WithContext(middleware.ContextWithAccessToken(req.Context(), "header-token"))
	w := httptest.NewRecorder()
	h.Session(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "header-token" {
		t.Errorf("token = %q, want %q", gotToken, "header-token")
	}
}

func TestAuthHandler_Session_ProviderRejects_Returns401WithMessage(t *testing.T) {
	svc := &mockAuthService{
		getUserFn: func(ctx context.Context, accessToken string) (json.RawMessage, error) {
			return nil, &supabase.Error{Status: 403, Code: "bad_jwt", Message: "invalid JWT: token is expired"}
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Session(w, postJSON("/api/auth/session", `{"accessToken":"expired"}`))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := decodeResponse(t, w)["error"]; got != "invalid JWT: token is expired" {
		t.Errorf("error = %v, want provider message", got)
	}
}

func TestAuthHandler_Session_TransportError_Returns500Generic(t *testing.T) {
	svc := &mockAuthService{
		getUserFn: func(ctx context.Context, accessToken string) (json.RawMessage, error) {
			return nil, errTransport
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Session(w, postJSON("/api/auth/session", `{"accessToken":"t"}`))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := decodeResponse(t, w)["error"]; got != "Internal server error" {
		t.Errorf("error = %v, must not leak transport detail", got)
	}
}

func TestAuthHandler_Session_InvalidJSON_Returns400(t *testing.T) {
	svc := &mockAuthService{}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Session(w, postJSON("/api/auth/session", `{"accessToken":`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if svc.calls != 0 {
		t.Errorf("provider calls = %d, want 0", svc.calls)
	}
}

// --- SignIn / SignUp ---

func TestAuthHandler_SignIn_MissingFields_Returns400WithoutProviderCall(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"missing password", `{"email":"a@example.com"}`},
		{"missing email", `{"password":"secret"}`},
		{"blank email", `{"email":"  ","password":"secret"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{}
			h := NewAuthHandler(svc)

			w := httptest.NewRecorder()
			h.SignIn(w, postJSON("/api/auth/signin", tt.body))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := decodeResponse(t, w)["error"]; got != "Email and password are required" {
				t.Errorf("error = %v", got)
			}
			if svc.calls != 0 {
				t.Errorf("provider calls = %d, want 0", svc.calls)
			}
		})
	}
}

func TestAuthHandler_SignIn_ValidCredentials_ReturnsSessionAndUser(t *testing.T) {
	svc := &mockAuthService{
		signInWithPasswordFn: func(ctx context.Context, email, password string) (*supabase.AuthResult, error) {
			if email != "a@example.com" || password != "secret" {
				t.Errorf("credentials = (%q, %q)", email, password)
			}
			return &supabase.AuthResult{
				Session: json.RawMessage(`{"access_token":"tok","token_type":"bearer"}`),
				User:    json.RawMessage(`{"id":"user-1"}`),
			}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignIn(w, postJSON("/api/auth/signin", `{"email":"a@example.com","password":"secret"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeResponse(t, w)
	session, ok := body["session"].(map[string]any)
	if !ok || session["access_token"] != "tok" {
		t.Errorf("session = %v, want provider session", body["session"])
	}
	if user, ok := body["user"].(map[string]any); !ok || user["id"] != "user-1" {
		t.Errorf("user = %v, want provider user", body["user"])
	}
	// プロキシはトークンを保存・設定しない
	if cookies := w.Result().Cookies(); len(cookies) != 0 {
		t.Errorf("proxy must not set cookies, got %v", cookies)
	}
}

func TestAuthHandler_SignIn_InvalidCredentials_Returns400WithMessage(t *testing.T) {
	svc := &mockAuthService{
		signInWithPasswordFn: func(ctx context.Context, email, password string) (*supabase.AuthResult, error) {
			return nil, &supabase.Error{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignIn(w, postJSON("/api/auth/signin", `{"email":"a@example.com","password":"wrong"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeResponse(t, w)["error"]; got != "Invalid login credentials" {
		t.Errorf("error = %v, want provider message", got)
	}
	if cookies := w.Result().Cookies(); len(cookies) != 0 {
		t.Errorf("proxy must not set cookies, got %v", cookies)
	}
}

func TestAuthHandler_SignUp_PendingConfirmation_ReturnsNullSession(t *testing.T) {
	svc := &mockAuthService{
		signUpFn: func(ctx context.Context, email, password string) (*supabase.AuthResult, error) {
			return &supabase.AuthResult{User: json.RawMessage(`{"id":"new-user"}`)}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignUp(w, postJSON("/api/auth/signup", `{"email":"new@example.com","password":"secret"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeResponse(t, w)
	if v, ok := body["session"]; !ok || v != nil {
		t.Errorf("session = %v, want null", v)
	}
}

func TestAuthHandler_SignUp_ProviderError_Returns400(t *testing.T) {
	svc := &mockAuthService{
		signUpFn: func(ctx context.Context, email, password string) (*supabase.AuthResult, error) {
			return nil, &supabase.Error{Status: 422, Message: "User already registered"}
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignUp(w, postJSON("/api/auth/signup", `{"email":"a@example.com","password":"secret"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeResponse(t, w)["error"]; got != "User already registered" {
		t.Errorf("error = %v", got)
	}
}

// --- SignOut ---

func TestAuthHandler_SignOut_UsesBearerToken(t *testing.T) {
	var gotToken string
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, accessToken string) error {
			gotToken = accessToken
			return nil
		},
	}
	h := NewAuthHandler(svc)

	req := postJSON("/api/auth/signout", ``)
	req = req.WithContext(middleware.ContextWithAccessToken(req.Context(), "header-token"))
	w := httptest.NewRecorder()
	h.SignOut(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "header-token" {
		t.Errorf("token = %q, want %q", gotToken, "header-token")
	}
	if got := decodeResponse(t, w)["success"]; got != true {
		t.Errorf("success = %v, want true", got)
	}
}

func TestAuthHandler_SignOut_UsesBodyTokenWithoutHeader(t *testing.T) {
	var gotToken string
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, accessToken string) error {
			gotToken = accessToken
			return nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignOut(w, postJSON("/api/auth/signout", `{"accessToken":"body-token"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "body-token" {
		t.Errorf("token = %q, want %q", gotToken, "body-token")
	}
}

func TestAuthHandler_SignOut_ProviderError_Returns400(t *testing.T) {
	svc := &mockAuthService{
		signOutFn: func(ctx context.Context, accessToken string) error {
			return &supabase.Error{Status: 500, Message: "Database error"}
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignOut(w, postJSON("/api/auth/signout", `{"accessToken":"t"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeResponse(t, w)["error"]; got != "Database error" {
		t.Errorf("error = %v", got)
	}
}

// --- SignInWithOTP ---

func TestAuthHandler_SignInWithOTP_MissingEmail_Returns400WithoutProviderCall(t *testing.T) {
	svc := &mockAuthService{}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignInWithOTP(w, postJSON("/api/auth/signin-otp", `{"redirectTo":"https://app.example.com"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if svc.calls != 0 {
		t.Errorf("provider calls = %d, want 0", svc.calls)
	}
}

func TestAuthHandler_SignInWithOTP_Success_PassesRedirect(t *testing.T) {
	var gotEmail, gotRedirect string
	svc := &mockAuthService{
		signInWithOTPFn: func(ctx context.Context, email, redirectTo string) (*supabase.OTPResult, error) {
			gotEmail, gotRedirect = email, redirectTo
			return &supabase.OTPResult{User: json.RawMessage("null"), Session: json.RawMessage("null")}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignInWithOTP(w, postJSON("/api/auth/signin-otp", `{"email":"a@example.com","redirectTo":"https://app.example.com/welcome"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotEmail != "a@example.com" || gotRedirect != "https://app.example.com/welcome" {
		t.Errorf("call = (%q, %q)", gotEmail, gotRedirect)
	}
	body := decodeResponse(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if _, ok := body["data"].(map[string]any); !ok {
		t.Errorf("data = %v, want object", body["data"])
	}
}

func TestAuthHandler_SignInWithOTP_ProviderError_Returns400(t *testing.T) {
	svc := &mockAuthService{
		signInWithOTPFn: func(ctx context.Context, email, redirectTo string) (*supabase.OTPResult, error) {
			return nil, &supabase.Error{Status: 429, Message: "Email rate limit exceeded"}
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignInWithOTP(w, postJSON("/api/auth/signin-otp", `{"email":"a@example.com"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := decodeResponse(t, w)["error"]; got != "Email rate limit exceeded" {
		t.Errorf("error = %v", got)
	}
}

// --- SignInWithOAuth ---

func TestAuthHandler_SignInWithOAuth_MissingProvider_Returns400(t *testing.T) {
	svc := &mockAuthService{}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignInWithOAuth(w, postJSON("/api/auth/signin-oauth", `{}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := decodeResponse(t, w)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["error"] != "Provider is required" {
		t.Errorf("error = %v", body["error"])
	}
	if svc.calls != 0 {
		t.Errorf("provider calls = %d, want 0", svc.calls)
	}
}

func TestAuthHandler_SignInWithOAuth_UnsupportedProvider_Returns400(t *testing.T) {
	svc := &mockAuthService{
		oauthURLFn: func(provider, redirectTo string) (*supabase.OAuthResult, error) {
			return nil, &supabase.Error{Status: 400, Code: "validation_failed", Message: "Unsupported provider: Not Valid"}
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignInWithOAuth(w, postJSON("/api/auth/signin-oauth", `{"provider":"Not Valid"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := decodeResponse(t, w)
	if body["success"] != false || body["error"] != "Unsupported provider: Not Valid" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthHandler_SignInWithOAuth_Success_ReturnsURL(t *testing.T) {
	svc := &mockAuthService{
		oauthURLFn: func(provider, redirectTo string) (*supabase.OAuthResult, error) {
			return &supabase.OAuthResult{
				Provider: provider,
				URL:      "https://project.supabase.co/auth/v1/authorize?provider=" + provider,
			}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.SignInWithOAuth(w, postJSON("/api/auth/signin-oauth", `{"provider":"github","redirectTo":"https://app.example.com"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeResponse(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v, want object", body["data"])
	}
	if data["provider"] != "github" {
		t.Errorf("data.provider = %v, want github", data["provider"])
	}
	if data["url"] != "https://project.supabase.co/auth/v1/authorize?provider=github" {
		t.Errorf("data.url = %v", data["url"])
	}
}
