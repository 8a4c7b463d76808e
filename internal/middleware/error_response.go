package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// internalServerErrorMessage は内部エラー時にクライアントへ返す唯一のメッセージ。
const internalServerErrorMessage = "Internal server error"

// ErrorResponseBody は {"error": "..."} 形式のエラーレスポンス。
type ErrorResponseBody struct {
	Error string `json:"error"`
}

// WriteJSON はステータスコードとJSONボディを書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// WriteErrorResponse は {"error": message} 形式のエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponseBody{Error: message})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, internalServerErrorMessage)
}
