package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout はリクエスト全体のタイムアウトの既定値。
const DefaultTimeout = 10 * time.Second

// maxErrorBody はエラー時に読み取るレスポンスボディの上限。
const maxErrorBody = 4 << 10

// Client は外部サービス呼び出し用のHTTPクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option は Client の設定を変更する。
type Option func(*Client)

// WithTimeout はリクエスト全体のタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://auth:9999"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError は2xx以外のレスポンスを表す。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// GetJSON は指定パスにGETリクエストを送信し、レスポンスボディをresultにデシリアライズする。
// コンテキストにBearerトークンがあればAuthorizationヘッダーとして送る。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token, ok := ctx.Value(contextKeyBearer).(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

type contextKey string

const contextKeyBearer contextKey = "bearer_token"

// WithBearerToken はコンテキストにBearerトークンを設定する。
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyBearer, token)
}
