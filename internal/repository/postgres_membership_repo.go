package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/baasproxy/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを直接参照する会員リポジトリ。
// DATABASE_URLが設定されている場合にテーブルAPIの代わりに使用する。
type PostgresMembershipRepo struct {
	db    *sql.DB
	table string
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB, table string) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db, table: table}
}

// FindActive はemailに一致する有効な会員行を取得する。見つからない場合はnilを返す。
func (r *PostgresMembershipRepo) FindActive(ctx context.Context, email string, withPremium bool) (*model.Membership, error) {
	query := r.selectQuery(withPremium)

	m := &model.Membership{}
	var err error
	if withPremium {
		var premium sql.NullBool
		err = r.db.QueryRowContext(ctx, query, email, model.MembershipStatusActive).
			Scan(&m.Email, &m.Status, &premium)
		if premium.Valid {
			m.IsPremium = &premium.Bool
		}
	} else {
		err = r.db.QueryRowContext(ctx, query, email, model.MembershipStatusActive).
			Scan(&m.Email, &m.Status)
	}

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		var pqErr *pq.Error
		if withPremium && errors.As(err, &pqErr) && string(pqErr.Code) == undefinedColumnCode {
			return nil, fmt.Errorf("select %s: %w", r.table, ErrColumnUnsupported)
		}
		return nil, fmt.Errorf("failed to find active membership: %w", err)
	}

	return m, nil
}

// selectQuery は会員行検索のSQLを組み立てる。テーブル名は識別子としてクォートする。
func (r *PostgresMembershipRepo) selectQuery(withPremium bool) string {
	columns := "email, status"
	if withPremium {
		columns += ", is_premium"
	}
	return fmt.Sprintf(
		`SELECT %s FROM %s WHERE email = $1 AND status = $2 LIMIT 1`,
		columns, pq.QuoteIdentifier(r.table),
	)
}
