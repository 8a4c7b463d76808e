package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Filter はテーブル検索の等価条件。
type Filter struct {
	Column string
	Value  string
}

// Eq は等価条件を生成する。
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// SelectOne はテーブルから条件に一致する先頭1行を取得する。
// 一致する行が無い場合は (nil, nil) を返す。
func (c *Client) SelectOne(ctx context.Context, table, columns string, filters ...Filter) (json.RawMessage, error) {
	query := url.Values{
		"select": {columns},
		"limit":  {"1"},
	}
	for _, f := range filters {
		query.Add(f.Column, "eq."+f.Value)
	}

	resp, err := c.do(ctx, request{
		operation: "select_" + table,
		method:    http.MethodGet,
		path:      "/rest/v1/" + url.PathEscape(table),
		query:     query,
	}, false)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s rows: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
