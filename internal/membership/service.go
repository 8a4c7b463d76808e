// Package membership は会員状態の照会を提供する。
package membership

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/baasproxy/internal/repository"
)

// ErrNotFound は有効な会員行が無いことを示す。
var ErrNotFound = errors.New("active membership not found")

// FallbackRecorder は任意列フォールバックの発生回数を記録するインターフェース。
type FallbackRecorder interface {
	RecordMembershipFallback()
}

// Status は会員状態の照会結果。
type Status struct {
	IsPremium bool
	IsActive  bool
	Email     string
}

// Service は会員状態の照会ロジックを提供する。
type Service struct {
	repo    repository.MembershipRepository
	metrics FallbackRecorder
	logger  *slog.Logger
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(repo repository.MembershipRepository, metrics FallbackRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, metrics: metrics, logger: logger}
}

// Check はemailの会員状態を照会する。
//
// is_premium列が存在しない場合は列なしで再検索し、IsPremium=false、
// IsActiveは行の有無で返す（この経路ではErrNotFoundを返さない）。
// それ以外で有効な行が得られない場合はErrNotFoundを返す。
// 列と無関係な検索失敗もErrNotFoundとして扱い、原因はログに記録する。
func (s *Service) Check(ctx context.Context, email string) (*Status, error) {
	m, err := s.repo.FindActive(ctx, email, true)
	if errors.Is(err, repository.ErrColumnUnsupported) {
		return s.checkWithoutPremium(ctx, email), nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "membership lookup failed",
			slog.String("error", err.Error()),
		)
		return nil, ErrNotFound
	}
	if m == nil {
		return nil, ErrNotFound
	}

	return &Status{
		IsPremium: m.Premium(),
		IsActive:  true,
		Email:     email,
	}, nil
}

// checkWithoutPremium はis_premium列を除いて再検索する。
func (s *Service) checkWithoutPremium(ctx context.Context, email string) *Status {
	if s.metrics != nil {
		s.metrics.RecordMembershipFallback()
	}
	s.logger.InfoContext(ctx, "premium column unsupported, retrying without it")

	m, err := s.repo.FindActive(ctx, email, false)
	if err != nil {
		s.logger.WarnContext(ctx, "membership fallback lookup failed",
			slog.String("error", err.Error()),
		)
	}

	return &Status{
		IsPremium: false,
		IsActive:  err == nil && m != nil,
		Email:     email,
	}
}

// HasActiveMembership はemailに有効な会員行があるかを返す。
// 検索失敗は「会員なし」として扱い、エラーは返さない。
func (s *Service) HasActiveMembership(ctx context.Context, email string) bool {
	m, err := s.repo.FindActive(ctx, email, false)
	if err != nil {
		s.logger.WarnContext(ctx, "email membership lookup failed",
			slog.String("error", err.Error()),
		)
		return false
	}
	return m != nil
}
