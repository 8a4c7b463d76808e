// Package repository は会員データ参照のインターフェースと実装を定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/baasproxy/internal/model"
)

// ErrColumnUnsupported はストアのスキーマに任意列（is_premium）が存在しないことを示す。
var ErrColumnUnsupported = errors.New("optional column is not supported by the store")

// undefinedColumnCode はPostgreSQLのundefined_columnエラーコード。
const undefinedColumnCode = "42703"

// MembershipRepository は会員行の参照インターフェース。
type MembershipRepository interface {
	// FindActive はemailに一致しstatusがactiveの行を1件取得する。
	// withPremiumがtrueの場合はis_premium列も取得する。
	// 見つからない場合はnilを返す。
	// is_premium列が存在しない場合はErrColumnUnsupportedを返す。
	FindActive(ctx context.Context, email string, withPremium bool) (*model.Membership, error)
}
