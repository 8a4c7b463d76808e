package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/baasproxy/internal/model"
	"github.com/hitoshi/baasproxy/internal/supabase"
)

// schemaCacheColumnCode はテーブルAPIのスキーマキャッシュに列が無い場合のコード。
const schemaCacheColumnCode = "PGRST204"

// RowSelector はテーブルAPIから1行を取得するインターフェース。
// supabase.Clientの部分集合として定義する。
type RowSelector interface {
	SelectOne(ctx context.Context, table, columns string, filters ...supabase.Filter) (json.RawMessage, error)
}

// RESTMembershipRepo はプロバイダーのテーブルAPIを使用した会員リポジトリ。
type RESTMembershipRepo struct {
	selector RowSelector
	table    string
}

// NewRESTMembershipRepo はRESTMembershipRepoを生成する。
func NewRESTMembershipRepo(selector RowSelector, table string) *RESTMembershipRepo {
	return &RESTMembershipRepo{selector: selector, table: table}
}

// FindActive はemailに一致する有効な会員行を取得する。
func (r *RESTMembershipRepo) FindActive(ctx context.Context, email string, withPremium bool) (*model.Membership, error) {
	columns := "email,status"
	if withPremium {
		columns += ",is_premium"
	}

	row, err := r.selector.SelectOne(ctx, r.table, columns,
		supabase.Eq("email", email),
		supabase.Eq("status", model.MembershipStatusActive),
	)
	if err != nil {
		if withPremium && isUndefinedColumn(err) {
			return nil, fmt.Errorf("select %s: %w", r.table, ErrColumnUnsupported)
		}
		return nil, fmt.Errorf("failed to find active membership: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	m := &model.Membership{}
	if err := json.Unmarshal(row, m); err != nil {
		return nil, fmt.Errorf("failed to decode membership row: %w", err)
	}
	return m, nil
}

// isUndefinedColumn はテーブルAPIのエラーが列の不在によるものかを判定する。
func isUndefinedColumn(err error) bool {
	var pe *supabase.Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == undefinedColumnCode || pe.Code == schemaCacheColumnCode
}
