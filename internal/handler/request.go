// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/baasproxy/internal/middleware"
	"github.com/hitoshi/baasproxy/internal/supabase"
)

// maxRequestBodySize はリクエストボディの最大バイト数。
const maxRequestBodySize = 1 << 20

// errInvalidBody はリクエストボディがJSONとして解釈できないことを示す。
var errInvalidBody = errors.New("invalid request body")

// decodeBody はJSONボディをvにデコードする。
// ボディが空の場合はvをゼロ値のまま成功とする（必須項目の検証は呼び出し側で行う）。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// isBlank は必須文字列項目が未指定かを判定する。
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// providerMessage はプロバイダーエラーであればそのメッセージを返す。
// 通信失敗など、プロバイダーが明示的に返したエラーでない場合はfalseを返す。
func providerMessage(err error) (string, bool) {
	pe, ok := supabase.AsError(err)
	if !ok {
		return "", false
	}
	return pe.Message, true
}

// writeUnexpectedError は想定外のエラーをログに記録し、bodyを500で返す。
// bodyがnilの場合は {"error":"Internal server error"} を返す。
func writeUnexpectedError(w http.ResponseWriter, r *http.Request, op string, err error, body any) {
	slog.ErrorContext(r.Context(), "request failed",
		slog.String("operation", op),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	if body == nil {
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteJSON(w, http.StatusInternalServerError, body)
}
