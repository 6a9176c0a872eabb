// Package supabase は認証プロバイダー（Supabase Auth / PostgREST）のRESTクライアントを提供する。
//
// セッションはCookieに保存され、リクエストごとにForRequestで生成する
// ServerClientを通して読み書きする。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize はプロバイダー応答の読み取り上限（1MB）。
const maxResponseSize = 1 << 20

// clientInfo はリクエストに付与するクライアント識別子。
const clientInfo = "maltresponse-go/1.0"

// ErrNotConfigured はプロバイダーURLが未設定の状態で呼び出された場合のエラー。
var ErrNotConfigured = errors.New("supabase: provider is not configured")

// Config はプロバイダークライアントの設定を保持する。
type Config struct {
	URL       string // プロジェクトURL（例: https://abcd1234.supabase.co）
	APIKey    string // 公開キー（publishable / anon）
	JWTSecret string // 設定時はアクセストークンをローカルでHS256検証する

	// EmailRedirectTo はOTPメール内リンクの戻り先（/auth/callback）。
	EmailRedirectTo string

	HTTPClient   *http.Client
	CookieSecure bool
	CookieDomain string

	// Configured はプロバイダーが実際に利用可能かどうか。
	Configured bool
}

// Client はプロバイダーへの低レベルなHTTPアクセスを担う。
// 状態を持たないため、複数のgoroutineから安全に共有できる。
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	storageKey string
	now        func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: httpClient,
		storageKey: storageKeyFor(cfg.URL),
		now:        time.Now,
	}
}

// Configured はプロバイダーが利用可能かどうかを返す。
func (c *Client) Configured() bool {
	return c.cfg.Configured
}

// StorageKey はセッションCookieの名前を返す。
func (c *Client) StorageKey() string {
	return c.storageKey
}

// storageKeyFor はプロジェクトURLのホスト先頭ラベルから "sb-<ref>-auth-token" を組み立てる。
func storageKeyFor(rawURL string) string {
	ref := "local"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		ref = strings.Split(u.Hostname(), ".")[0]
	}
	return "sb-" + ref + "-auth-token"
}

// request はプロバイダーへ1回のリクエストを送信し、JSON応答をoutへデコードする。
// tokenが空の場合はAuthorizationヘッダーを付与しない。
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, token string, header http.Header, out any) error {
	if !c.cfg.Configured {
		return ErrNotConfigured
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("X-Client-Info", clientInfo)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAuthError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
