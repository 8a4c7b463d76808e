package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
)

// AuthResult はパスワード認証（サインイン・サインアップ）の結果。
// Sessionはメール確認待ちのサインアップなどセッションが発行されない場合nil。
type AuthResult struct {
	Session json.RawMessage
	User    json.RawMessage
}

// OTPResult はマジックリンク送信の結果。
// マジックリンク送信時点ではユーザーもセッションも確定しない。
type OTPResult struct {
	User      json.RawMessage `json:"user"`
	Session   json.RawMessage `json:"session"`
	MessageID string          `json:"messageId,omitempty"`
}

// OAuthResult はOAuthフロー開始の結果。
// 呼び出し元はURLへ遷移してフローを継続する。
type OAuthResult struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// credentials はパスワード認証のリクエストボディ。
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionEnvelope はセッション応答からアクセストークンとユーザーを取り出すための型。
type sessionEnvelope struct {
	AccessToken string          `json:"access_token"`
	User        json.RawMessage `json:"user"`
}

// oauthProviderPattern はOAuthプロバイダー名として受け付ける形式。
var oauthProviderPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// GetUser はアクセストークンを検証し、対応するユーザーを返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (json.RawMessage, error) {
	resp, err := c.do(ctx, request{
		operation: "get_user",
		method:    http.MethodGet,
		path:      "/auth/v1/user",
		bearer:    accessToken,
	}, false)
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.body) {
		return nil, fmt.Errorf("invalid get_user response body")
	}
	return json.RawMessage(resp.body), nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthResult, error) {
	resp, err := c.do(ctx, request{
		operation: "sign_in",
		method:    http.MethodPost,
		path:      "/auth/v1/token",
		query:     url.Values{"grant_type": {"password"}},
		body:      credentials{Email: email, Password: password},
	}, false)
	if err != nil {
		return nil, err
	}

	var env sessionEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse sign_in response: %w", err)
	}
	return &AuthResult{
		Session: json.RawMessage(resp.body),
		User:    env.User,
	}, nil
}

// SignUp はメールアドレスとパスワードでユーザーを登録する。
// メール確認が必要な設定では応答がユーザー単体となり、Sessionはnilになる。
func (c *Client) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	resp, err := c.do(ctx, request{
		operation: "sign_up",
		method:    http.MethodPost,
		path:      "/auth/v1/signup",
		body:      credentials{Email: email, Password: password},
	}, false)
	if err != nil {
		return nil, err
	}

	var env sessionEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse sign_up response: %w", err)
	}
	if env.AccessToken == "" {
		return &AuthResult{User: json.RawMessage(resp.body)}, nil
	}
	return &AuthResult{
		Session: json.RawMessage(resp.body),
		User:    env.User,
	}, nil
}

// SignOut はアクセストークンに紐づくセッションを失効させる。
// トークンが空の場合は失効対象が無いため何もしない。
// 既に無効なトークン（401/403/404）は失効済みとして成功扱いにする。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}

	_, err := c.do(ctx, request{
		operation: "sign_out",
		method:    http.MethodPost,
		path:      "/auth/v1/logout",
		query:     url.Values{"scope": {"global"}},
		bearer:    accessToken,
	}, false)
	if pe, ok := AsError(err); ok {
		switch pe.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return nil
		}
	}
	return err
}

// SignInWithOTP はマジックリンクをメールで送信する。
// redirectToが空でない場合、リンクの遷移先として渡す。
func (c *Client) SignInWithOTP(ctx context.Context, email, redirectTo string) (*OTPResult, error) {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	resp, err := c.do(ctx, request{
		operation: "sign_in_otp",
		method:    http.MethodPost,
		path:      "/auth/v1/otp",
		query:     query,
		body: map[string]any{
			"email":       email,
			"create_user": true,
			"data":        map[string]any{},
		},
	}, false)
	if err != nil {
		return nil, err
	}

	result := &OTPResult{}
	if len(resp.body) > 0 {
		var body struct {
			MessageID string `json:"message_id"`
		}
		if err := json.Unmarshal(resp.body, &body); err == nil {
			result.MessageID = body.MessageID
		}
	}
	return result, nil
}

// OAuthURL はOAuthプロバイダーの認可開始URLを生成する。
// プロバイダー名の形式が不正な場合はプロバイダーエラーを返す。
func (c *Client) OAuthURL(provider, redirectTo string) (*OAuthResult, error) {
	if !oauthProviderPattern.MatchString(provider) {
		return nil, &Error{
			Status:  http.StatusBadRequest,
			Code:    "validation_failed",
			Message: fmt.Sprintf("Unsupported provider: %s", provider),
		}
	}

	query := url.Values{"provider": {provider}}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	return &OAuthResult{
		Provider: provider,
		URL:      c.baseURL + "/auth/v1/authorize?" + query.Encode(),
	}, nil
}
