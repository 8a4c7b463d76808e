package supabase

import (
	"context"
	"net/http"
	"net/url"
)

// FunctionResponse はサーバーレス関数の応答。
// ステータスとボディは加工せずに保持する。
type FunctionResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// InvokeFunction はサーバーレス関数をプロバイダーキーで認証して呼び出す。
// 関数が2xx以外を返してもエラーにはせず、そのまま呼び出し元へ返す。
// 通信に失敗した場合のみエラーを返す。
func (c *Client) InvokeFunction(ctx context.Context, name string, body any) (*FunctionResponse, error) {
	resp, err := c.do(ctx, request{
		operation: "invoke_" + name,
		method:    http.MethodPost,
		path:      "/functions/v1/" + url.PathEscape(name),
		body:      body,
		bearer:    c.apiKey,
	}, true)
	if err != nil {
		return nil, err
	}
	return &FunctionResponse{
		Status:      resp.status,
		ContentType: resp.contentType,
		Body:        resp.body,
	}, nil
}
