// Package client はプロキシAPIを呼び出すセッションヘルパーを提供する。
//
// Sessionはアクセストークンを TokenStore に保存し、最後に解決したユーザーを
// メモリにキャッシュする。全操作はプロバイダーではなくプロキシを経由する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/baasproxy/internal/model"
)

// maxResponseSize はプロキシ応答として読み取る最大バイト数。
const maxResponseSize = 4 << 20

// ErrNoURL はOAuth開始応答にリダイレクトURLが含まれていないことを示す。
var ErrNoURL = errors.New("oauth response did not include a redirect URL")

// HTTPError はプロキシが2xx以外で応答したことを示す。
// Messageは応答ボディのerrorフィールド。
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("proxy returned %d: %s", e.Status, e.Message)
}

// Rejected はプロキシがトークンを無効として拒否した（401/403）かを返す。
// レート制限（429）やルーティングの誤り（404/405）は拒否に含めない。
func (e *HTTPError) Rejected() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// SessionState は現在のセッション。未サインインの場合はゼロ値。
type SessionState struct {
	AccessToken string
	// Session はサインイン応答のセッションオブジェクト。トークン検証で復元した場合はnil。
	Session json.RawMessage
	User    json.RawMessage
}

// Empty はセッションが無いかを返す。
func (s SessionState) Empty() bool {
	return len(s.User) == 0
}

// AuthData はサインイン・サインアップの結果。
// メール確認待ちのサインアップではSessionがnullになる。
type AuthData struct {
	Session json.RawMessage `json:"session"`
	User    json.RawMessage `json:"user"`
}

// OAuthData はOAuthフロー開始の結果。
type OAuthData struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// MembershipStatus は会員状態。
type MembershipStatus struct {
	IsPremium bool   `json:"isPremium"`
	IsActive  bool   `json:"isActive"`
	Email     string `json:"email,omitempty"`
}

// EmailMembership はメールアドレスの会員有無。
type EmailMembership struct {
	HasActiveMembership bool   `json:"hasActiveMembership"`
	Email               string `json:"email,omitempty"`
}

// Navigator はOAuthのリダイレクトURLへ遷移する。
type Navigator interface {
	Navigate(url string) error
}

// NavigatorFunc は関数をNavigatorとして扱うアダプター。
type NavigatorFunc func(url string) error

// Navigate はf(url)を呼び出す。
func (f NavigatorFunc) Navigate(url string) error {
	return f(url)
}

// Option はSessionの任意設定。
type Option func(*Session)

// WithHTTPClient はプロキシ呼び出しに使うHTTPクライアントを指定する。
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

// WithNavigator はOAuth開始後の遷移先を指定する。
func WithNavigator(n Navigator) Option {
	return func(s *Session) { s.navigator = n }
}

// WithLogger はロガーを指定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session はプロキシAPIに対するセッションコンテキスト。
// アプリケーションごとに1つ生成し、認証状態を必要とする呼び出し元へ渡す。
type Session struct {
	baseURL    string
	store      TokenStore
	httpClient *http.Client
	navigator  Navigator
	logger     *slog.Logger

	mu      sync.Mutex
	session json.RawMessage
	user    json.RawMessage
}

// New はbaseURLのプロキシを呼び出すSessionを生成する。
func New(baseURL string, store TokenStore, opts ...Option) *Session {
	s := &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sessionRequest struct {
	AccessToken string `json:"accessToken"`
}

type userEnvelope struct {
	User json.RawMessage `json:"user"`
}

type tokenEnvelope struct {
	AccessToken string `json:"access_token"`
}

type dataEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// GetSession は現在のセッションを返す。
//
// トークンが無い場合は空のセッションを返す。キャッシュがあれば通信せずに返す。
// プロキシがトークンを拒否した（401/403）場合はトークンを削除して空のセッションを返す。
// 通信失敗、429などその他の4xx、5xxの場合はトークンを残したままエラーを返す。
func (s *Session) GetSession(ctx context.Context) Result[SessionState] {
	token, err := s.store.Get()
	if err != nil {
		return Fail[SessionState](err)
	}
	if token == "" {
		return OK(SessionState{})
	}

	if cached, ok := s.cached(token); ok {
		return OK(cached)
	}

	var resp userEnvelope
	err = s.post(ctx, "/api/auth/session", sessionRequest{AccessToken: token}, token, &resp)
	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr) && httpErr.Rejected():
		s.logger.DebugContext(ctx, "stored access token rejected",
			slog.Int("status", httpErr.Status),
		)
		return s.discardToken()
	case err != nil:
		return Fail[SessionState](err)
	case isNullJSON(resp.User):
		return s.discardToken()
	}

	s.setCache(nil, resp.User)
	return OK(SessionState{AccessToken: token, User: resp.User})
}

// discardToken は無効になったトークンとキャッシュを削除し、空のセッションを返す。
func (s *Session) discardToken() Result[SessionState] {
	s.setCache(nil, nil)
	if err := s.store.Delete(); err != nil {
		return Fail[SessionState](err)
	}
	return OK(SessionState{})
}

// SignIn はメールアドレスとパスワードでサインインする。
func (s *Session) SignIn(ctx context.Context, email, password string) Result[AuthData] {
	return s.passwordAuth(ctx, "/api/auth/signin", email, password)
}

// SignUp はメールアドレスとパスワードでユーザーを登録する。
func (s *Session) SignUp(ctx context.Context, email, password string) Result[AuthData] {
	return s.passwordAuth(ctx, "/api/auth/signup", email, password)
}

func (s *Session) passwordAuth(ctx context.Context, path, email, password string) Result[AuthData] {
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var data AuthData
	if err := s.post(ctx, path, req, "", &data); err != nil {
		return Fail[AuthData](err)
	}

	var tok tokenEnvelope
	if !isNullJSON(data.Session) {
		if err := json.Unmarshal(data.Session, &tok); err != nil {
			return Fail[AuthData](fmt.Errorf("failed to decode session: %w", err))
		}
	}
	if tok.AccessToken != "" {
		if err := s.store.Set(tok.AccessToken); err != nil {
			return Fail[AuthData](err)
		}
		s.setCache(data.Session, data.User)
	}

	return OK(data)
}

// SignOut はサインアウトし、成功した場合のみトークンとキャッシュを削除する。
func (s *Session) SignOut(ctx context.Context) Result[struct{}] {
	token, err := s.store.Get()
	if err != nil {
		return Fail[struct{}](err)
	}

	if err := s.post(ctx, "/api/auth/signout", struct{}{}, token, nil); err != nil {
		return Fail[struct{}](err)
	}

	s.setCache(nil, nil)
	if err := s.store.Delete(); err != nil {
		return Fail[struct{}](err)
	}
	return OK(struct{}{})
}

// SignInWithOTP はマジックリンクの送信を依頼する。
func (s *Session) SignInWithOTP(ctx context.Context, email, redirectTo string) Result[json.RawMessage] {
	req := struct {
		Email      string `json:"email"`
		RedirectTo string `json:"redirectTo,omitempty"`
	}{Email: email, RedirectTo: redirectTo}

	var resp dataEnvelope[json.RawMessage]
	if err := s.post(ctx, "/api/auth/signin-otp", req, "", &resp); err != nil {
		return Fail[json.RawMessage](err)
	}
	return OK(resp.Data)
}

// SignInWithOAuth はOAuthフローを開始し、返されたURLへ遷移する。
// 200応答でもURLが無い場合はErrNoURLを返す。
func (s *Session) SignInWithOAuth(ctx context.Context, provider, redirectTo string) Result[OAuthData] {
	req := struct {
		Provider   string `json:"provider"`
		RedirectTo string `json:"redirectTo,omitempty"`
	}{Provider: provider, RedirectTo: redirectTo}

	var resp dataEnvelope[OAuthData]
	if err := s.post(ctx, "/api/auth/signin-oauth", req, "", &resp); err != nil {
		return Fail[OAuthData](err)
	}
	if resp.Data.URL == "" {
		return Fail[OAuthData](ErrNoURL)
	}

	if s.navigator != nil {
		if err := s.navigator.Navigate(resp.Data.URL); err != nil {
			return Fail[OAuthData](fmt.Errorf("failed to navigate to %s: %w", resp.Data.Provider, err))
		}
	}
	return OK(resp.Data)
}

// CheckMembership はメールアドレスの会員状態を返す。
// 有効な会員行が無い場合（404）は両フラグfalseの成功結果になる。
func (s *Session) CheckMembership(ctx context.Context, email string) Result[MembershipStatus] {
	var status MembershipStatus
	err := s.post(ctx, "/api/membership/check", struct {
		Email string `json:"email"`
	}{Email: email}, "", &status)

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return OK(MembershipStatus{})
	}
	if err != nil {
		return Fail[MembershipStatus](err)
	}
	return OK(status)
}

// VerifyEmailMembership はメールアドレスに有効な会員行があるかを返す。
func (s *Session) VerifyEmailMembership(ctx context.Context, email string) Result[EmailMembership] {
	var resp EmailMembership
	if err := s.post(ctx, "/api/membership/verify-email", struct {
		Email string `json:"email"`
	}{Email: email}, "", &resp); err != nil {
		return Fail[EmailMembership](err)
	}
	return OK(resp)
}

// Chat はAIチャットを呼び出し、関数の応答ボディをそのまま返す。
func (s *Session) Chat(ctx context.Context, messages []model.ChatMessage, modelName string) Result[json.RawMessage] {
	raw, err := json.Marshal(messages)
	if err != nil {
		return Fail[json.RawMessage](fmt.Errorf("failed to encode messages: %w", err))
	}

	var resp json.RawMessage
	if err := s.post(ctx, "/api/ai/chat", model.ChatRequest{
		Messages: raw,
		Model:    modelName,
	}, "", &resp); err != nil {
		return Fail[json.RawMessage](err)
	}
	return OK(resp)
}

func (s *Session) cached(token string) (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.user) == 0 {
		return SessionState{}, false
	}
	return SessionState{AccessToken: token, Session: s.session, User: s.user}, true
}

func (s *Session) setCache(session, user json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.user = user
}

// post はプロキシにJSONをPOSTし、2xxの応答ボディをoutへデコードする。
// bearerが空でなければAuthorizationヘッダーに付与する。
func (s *Session) post(ctx context.Context, path string, body any, bearer string, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage は応答ボディのerrorフィールドを取り出す。
func errorMessage(status int, body []byte) string {
	var eb struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	return http.StatusText(status)
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
