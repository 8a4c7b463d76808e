package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/baasproxy/internal/membership"
	"github.com/hitoshi/baasproxy/internal/middleware"
)

// MembershipService は会員ハンドラーが必要とするサービスインターフェース。
type MembershipService interface {
	Check(ctx context.Context, email string) (*membership.Status, error)
	HasActiveMembership(ctx context.Context, email string) bool
}

// MembershipHandler は会員状態照会のHTTPハンドラー。
type MembershipHandler struct {
	service MembershipService
}

// NewMembershipHandler はMembershipHandlerを生成する。
func NewMembershipHandler(service MembershipService) *MembershipHandler {
	return &MembershipHandler{service: service}
}

type emailRequest struct {
	Email string `json:"email"`
}

type membershipStatusResponse struct {
	IsPremium bool   `json:"isPremium"`
	IsActive  bool   `json:"isActive"`
	Email     string `json:"email,omitempty"`
}

type emailMembershipResponse struct {
	HasActiveMembership bool   `json:"hasActiveMembership"`
	Email               string `json:"email,omitempty"`
	Error               string `json:"error,omitempty"`
}

// Check はメールアドレスの会員状態（有効・プレミアム）を返す。
// 有効な会員行が無い場合は404で両フラグfalseを返す。
// POST /api/membership/check
func (h *MembershipHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if isBlank(req.Email) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Email is required")
		return
	}

	status, err := h.service.Check(r.Context(), req.Email)
	if errors.Is(err, membership.ErrNotFound) {
		middleware.WriteJSON(w, http.StatusNotFound, membershipStatusResponse{})
		return
	}
	if err != nil {
		writeUnexpectedError(w, r, "membership_check", err, nil)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, membershipStatusResponse{
		IsPremium: status.IsPremium,
		IsActive:  status.IsActive,
		Email:     status.Email,
	})
}

// VerifyEmail はメールアドレスに有効な会員行があるかを返す。
// 検索に失敗しても200で hasActiveMembership=false を返す。
// POST /api/membership/verify-email
func (h *MembershipHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, emailMembershipResponse{Error: "Invalid request body"})
		return
	}
	if isBlank(req.Email) {
		middleware.WriteJSON(w, http.StatusBadRequest, emailMembershipResponse{Error: "Email is required"})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, emailMembershipResponse{
		HasActiveMembership: h.service.HasActiveMembership(r.Context(), req.Email),
		Email:               req.Email,
	})
}
