// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// accessTokenContextKey はリクエストコンテキストにBearerトークンを格納するためのキー。
	accessTokenContextKey = contextKey("access_token")
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
)

// NewBearerTokenMiddleware はAuthorizationヘッダーのBearerトークンを
// リクエストコンテキストに注入するミドルウェアを返す。
//
// トークンの有効性はプロバイダーが判定するため、ここでは検証せず、
// トークンが無いリクエストも拒否しない。
// ログの帰属用に、署名を検証せずsubクレームを読み取りユーザーIDとして注入する。
// このユーザーIDを認可判断に使ってはならない。
func NewBearerTokenMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := ContextWithAccessToken(r.Context(), token)
			if sub := unverifiedSubject(token); sub != "" {
				ctx = ContextWithUserID(ctx, sub)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出す。
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// unverifiedSubject はJWTのsubクレームを署名検証なしで読み取る。
// JWTでない場合は空文字列を返す。
func unverifiedSubject(token string) string {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}

// AccessTokenFromContext はリクエストコンテキストからBearerトークンを取得する。
// 提示されていない場合は空文字列を返す。
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenContextKey).(string)
	return token
}

// ContextWithAccessToken はコンテキストにBearerトークンを注入する。
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey, token)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// Bearerトークンミドルウェアを通過し、トークンがJWTだった場合のみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
