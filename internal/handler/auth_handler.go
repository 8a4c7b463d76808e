package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/baasproxy/internal/middleware"
	"github.com/hitoshi/baasproxy/internal/supabase"
)

// AuthService は認証ハンドラーが必要とするプロバイダー操作のインターフェース。
// supabase.Clientが実装する。
type AuthService interface {
	GetUser(ctx context.Context, accessToken string) (json.RawMessage, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthResult, error)
	SignUp(ctx context.Context, email, password string) (*supabase.AuthResult, error)
	SignOut(ctx context.Context, accessToken string) error
	SignInWithOTP(ctx context.Context, email, redirectTo string) (*supabase.OTPResult, error)
	OAuthURL(provider, redirectTo string) (*supabase.OAuthResult, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
// トークンはサーバー側に保存せず、プロバイダーの応答をそのまま返す。
type AuthHandler struct {
	service AuthService
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

type sessionRequest struct {
	AccessToken string `json:"accessToken"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

type oauthRequest struct {
	Provider   string `json:"provider"`
	RedirectTo string `json:"redirectTo"`
}

type userResponse struct {
	User json.RawMessage `json:"user"`
}

type authResponse struct {
	Session json.RawMessage `json:"session"`
	User    json.RawMessage `json:"user"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type successDataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Session はアクセストークンからユーザーを解決する。
// POST /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token := req.AccessToken
	if isBlank(token) {
		token = middleware.AccessTokenFromContext(r.Context())
	}
	if isBlank(token) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Access token is required")
		return
	}

	user, err := h.service.GetUser(r.Context(), token)
	if err != nil {
		if msg, ok := providerMessage(err); ok {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, msg)
			return
		}
		writeUnexpectedError(w, r, "session", err, nil)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, userResponse{User: user})
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.passwordAuth(w, r, "signin", h.service.SignInWithPassword)
}

// SignUp はメールアドレスとパスワードでユーザーを登録する。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.passwordAuth(w, r, "signup", h.service.SignUp)
}

func (h *AuthHandler) passwordAuth(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	call func(ctx context.Context, email, password string) (*supabase.AuthResult, error),
) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if isBlank(req.Email) || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	result, err := call(r.Context(), req.Email, req.Password)
	if err != nil {
		if msg, ok := providerMessage(err); ok {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, msg)
			return
		}
		writeUnexpectedError(w, r, op, err, nil)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, authResponse{
		Session: result.Session,
		User:    result.User,
	})
}

// SignOut は呼び出し元のトークンを失効させる。
// トークンはAuthorizationヘッダーまたはボディのaccessTokenから取得する。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token := middleware.AccessTokenFromContext(r.Context())
	if isBlank(token) {
		token = req.AccessToken
	}

	if err := h.service.SignOut(r.Context(), token); err != nil {
		if msg, ok := providerMessage(err); ok {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, msg)
			return
		}
		writeUnexpectedError(w, r, "signout", err, nil)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// SignInWithOTP はマジックリンクをメールで送信する。
// POST /api/auth/signin-otp
func (h *AuthHandler) SignInWithOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if isBlank(req.Email) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Email is required")
		return
	}

	result, err := h.service.SignInWithOTP(r.Context(), req.Email, req.RedirectTo)
	if err != nil {
		if msg, ok := providerMessage(err); ok {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, msg)
			return
		}
		writeUnexpectedError(w, r, "signin_otp", err, nil)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, successDataResponse{Success: true, Data: result})
}

// SignInWithOAuth はOAuthフローの開始URLを返す。
// 呼び出し元はdata.urlへ遷移する。
// POST /api/auth/signin-oauth
func (h *AuthHandler) SignInWithOAuth(w http.ResponseWriter, r *http.Request) {
	var req oauthRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, failureResponse{Error: "Invalid request body"})
		return
	}
	if isBlank(req.Provider) {
		middleware.WriteJSON(w, http.StatusBadRequest, failureResponse{Error: "Provider is required"})
		return
	}

	result, err := h.service.OAuthURL(req.Provider, req.RedirectTo)
	if err != nil {
		if msg, ok := providerMessage(err); ok {
			middleware.WriteJSON(w, http.StatusBadRequest, failureResponse{Error: msg})
			return
		}
		writeUnexpectedError(w, r, "signin_oauth", err, failureResponse{Error: "Internal server error"})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, successDataResponse{Success: true, Data: result})
}
