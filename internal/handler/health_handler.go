package handler

import (
	"net/http"

	"github.com/hitoshi/baasproxy/internal/middleware"
)

// Health は死活監視用のエンドポイント。
// プロバイダーへの疎通は確認しない。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
