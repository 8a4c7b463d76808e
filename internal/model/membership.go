// Package model はドメインモデルを定義する。
package model

import "encoding/json"

// MembershipStatusActive は有効な会員行のstatus値。
const MembershipStatusActive = "active"

// Membership は外部データストア上の会員行を表す。
// このシステムからは読み取り専用で、更新は行わない。
type Membership struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	// IsPremium はスキーマにis_premium列が無い場合nilになる。
	IsPremium *bool `json:"is_premium,omitempty"`
}

// Premium はプレミアムフラグを返す。列が無い場合はfalse。
func (m *Membership) Premium() bool {
	return m != nil && m.IsPremium != nil && *m.IsPremium
}

// ChatMessage はAIチャットのメッセージ1件を表す。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest はAIチャット関数へ転送するリクエストボディ。
// Messagesは呼び出し元から受け取った配列をそのまま保持する。
type ChatRequest struct {
	Messages json.RawMessage `json:"messages"`
	Model    string          `json:"model,omitempty"`
}
