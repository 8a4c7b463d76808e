// Package supabase はBaaSプロバイダー（認証・テーブル・サーバーレス関数）のRESTクライアントを提供する。
// プロバイダーキーはこのパッケージの外へ出さない。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize はプロバイダー応答として読み取る最大バイト数。
const maxResponseSize = 4 << 20

// Recorder はプロバイダー呼び出しのメトリクス記録インターフェース。
type Recorder interface {
	RecordProviderCall(operation, outcome string, duration time.Duration)
}

// プロバイダー呼び出しの結果区分。
const (
	OutcomeSuccess        = "success"
	OutcomeProviderError  = "provider_error"
	OutcomeTransportError = "transport_error"
)

// Config はプロバイダークライアントの設定。
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    Recorder
}

// Client はプロバイダーのREST APIクライアント。
// 状態を持たないため、複数goroutineから共有して使用できる。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    Recorder
}

// NewClient はClientを生成する。
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

// Error はプロバイダーが明示的に返したエラー。
// 通信失敗（トランスポートエラー）はこの型にならない。
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.Status, e.Message)
}

// AsError はerrがプロバイダーエラーであればそれを返す。
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// request はプロバイダーへの1回分のリクエスト内容。
type request struct {
	operation string
	method    string
	path      string
	query     url.Values
	body      any
	bearer    string
	header    http.Header
}

// response はプロバイダーからの成功応答。
type response struct {
	status      int
	contentType string
	body        []byte
}

// do はリクエストを送信し、2xx以外はプロバイダーエラーに変換する。
// allowStatusがtrueの場合は2xx以外もエラーにせず応答をそのまま返す。
func (c *Client) do(ctx context.Context, req request, allowStatus bool) (*response, error) {
	start := time.Now()

	resp, err := c.send(ctx, req)
	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeTransportError
	case !allowStatus && (resp.status < 200 || resp.status >= 300):
		outcome = OutcomeProviderError
		err = parseError(resp.status, resp.body)
	}

	if c.metrics != nil {
		c.metrics.RecordProviderCall(req.operation, outcome, time.Since(start))
	}

	if err != nil {
		level := slog.LevelWarn
		if outcome == OutcomeTransportError {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "provider call failed",
			slog.String("operation", req.operation),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return resp, nil
}

// send はHTTPリクエストを組み立てて送信し、応答ボディを読み取る。
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", req.operation, err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", req.operation, err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("apikey", c.apiKey)
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", req.operation, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", req.operation, err)
	}

	return &response{
		status:      httpResp.StatusCode,
		contentType: httpResp.Header.Get("Content-Type"),
		body:        respBody,
	}, nil
}

// errorBody はプロバイダーのエラー応答に現れるフィールドの和集合。
// 認証APIとテーブルAPIで形式が異なるため、どちらも受け付ける。
type errorBody struct {
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	ErrorDescription string          `json:"error_description"`
	Error            string          `json:"error"`
	ErrorCode        string          `json:"error_code"`
	Code             json.RawMessage `json:"code"`
}

// parseError はエラー応答ボディをErrorに変換する。
func parseError(status int, body []byte) *Error {
	pe := &Error{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		pe.Message = http.StatusText(status)
		return pe
	}

	pe.Code = eb.ErrorCode
	if pe.Code == "" && len(eb.Code) > 0 {
		// codeは文字列（テーブルAPI）または数値（認証API）で返る
		var s string
		if err := json.Unmarshal(eb.Code, &s); err == nil {
			pe.Code = s
		}
	}

	switch {
	case eb.Msg != "":
		pe.Message = eb.Msg
	case eb.ErrorDescription != "":
		pe.Message = eb.ErrorDescription
	case eb.Message != "":
		pe.Message = eb.Message
	case eb.Error != "":
		pe.Message = eb.Error
	default:
		pe.Message = http.StatusText(status)
	}
	if pe.Code == "" && eb.Error != "" && eb.Error != pe.Message {
		pe.Code = eb.Error
	}

	return pe
}
