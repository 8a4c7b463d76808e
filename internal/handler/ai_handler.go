package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/baasproxy/internal/middleware"
	"github.com/hitoshi/baasproxy/internal/model"
	"github.com/hitoshi/baasproxy/internal/supabase"
)

// aiFailureMessage はAI関数の呼び出しに失敗した場合のメッセージ。
const aiFailureMessage = "Failed to process AI request"

// FunctionInvoker はサーバーレス関数を呼び出すインターフェース。
type FunctionInvoker interface {
	InvokeFunction(ctx context.Context, name string, body any) (*supabase.FunctionResponse, error)
}

// AIHandler はAIチャットを関数へ中継するHTTPハンドラー。
type AIHandler struct {
	invoker      FunctionInvoker
	functionName string
}

// NewAIHandler はAIHandlerを生成する。
func NewAIHandler(invoker FunctionInvoker, functionName string) *AIHandler {
	return &AIHandler{invoker: invoker, functionName: functionName}
}

// Chat はメッセージ列を関数へ転送し、関数の応答ステータスとJSONをそのまま返す。
// POST /api/ai/chat
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, failureResponse{Error: "Invalid request body"})
		return
	}
	if !isJSONArray(req.Messages) {
		middleware.WriteJSON(w, http.StatusBadRequest, failureResponse{Error: "Messages array is required"})
		return
	}

	resp, err := h.invoker.InvokeFunction(r.Context(), h.functionName, req)
	if err != nil {
		writeUnexpectedError(w, r, "ai_chat", err, failureResponse{Error: aiFailureMessage})
		return
	}
	if !json.Valid(resp.Body) {
		writeUnexpectedError(w, r, "ai_chat",
			errors.New("function returned a non-JSON body"),
			failureResponse{Error: aiFailureMessage},
		)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// isJSONArray は値がJSON配列かを判定する。
func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
