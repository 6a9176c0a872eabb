// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/maltresponse/internal/metrics"
	"github.com/hitoshi/maltresponse/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var userContextKey = contextKey("user")

// loginPath は未認証リクエストのリダイレクト先。
const loginPath = "/login"

// publicPrefixes は未認証でもアクセスできるパスの接頭辞。
var publicPrefixes = []string{"/login", "/auth", "/api"}

// staticExtensions はゲートを通さない静的ファイルの拡張子。
var staticExtensions = map[string]bool{
	".svg": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// ClaimsClient はリクエストに結び付いた認証プロバイダークライアント。
// セッションが無い場合は (nil, nil) を返す。
type ClaimsClient interface {
	GetClaims(ctx context.Context) (*model.Claims, error)
}

// ClaimsClientFactory はリクエストごとにClaimsClientを生成する。
// 生成されたクライアントによるCookieの変更は、転送するリクエストと
// レスポンスの両方に反映されなければならない。
type ClaimsClientFactory func(w http.ResponseWriter, r *http.Request) ClaimsClient

// GateConfig はセッションゲートの設定。
type GateConfig struct {
	// Enabled は認証プロバイダーが設定済みかどうか。起動時に1回だけ決定する。
	Enabled   bool
	NewClient ClaimsClientFactory
	Metrics   metrics.MetricsCollector
}

// NewSessionGateMiddleware は全リクエストでセッションを更新し、
// 未認証の保護ページへのアクセスを/loginへリダイレクトするミドルウェアを返す。
// 認証済みユーザーはリクエストコンテキストに注入する。
func NewSessionGateMiddleware(cfg GateConfig) func(next http.Handler) http.Handler {
	mc := cfg.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsStaticAsset(r.URL.Path) {
				mc.RecordGateDecision(metrics.GateBypass)
				next.ServeHTTP(w, r)
				return
			}

			if !cfg.Enabled {
				mc.RecordGateDecision(metrics.GateDisabled)
				next.ServeHTTP(w, r)
				return
			}

			// 1. リクエストのCookieに結び付いたクライアントでクレームを取得
			client := cfg.NewClient(w, r)
			start := time.Now()
			claims, err := client.GetClaims(r.Context())
			mc.RecordProviderLatency("get_claims", time.Since(start))
			if err != nil {
				// プロバイダー障害はユーザーなしとして扱う
				slog.Warn("session refresh failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				claims = nil
			}

			// 2. subjectがあればユーザーありとみなす
			var user *model.User
			if claims != nil && claims.Subject != "" {
				user = &model.User{ID: claims.Subject, Email: claims.Email}
			}

			// 3. 未認証で保護パスの場合はリダイレクト
			if user == nil && !IsPublicPath(r.URL.Path) {
				mc.RecordGateDecision(metrics.GateRedirect)
				http.Redirect(w, r, LoginRedirectURL(r), http.StatusTemporaryRedirect)
				return
			}

			mc.RecordGateDecision(metrics.GatePass)
			ctx := r.Context()
			if user != nil {
				ctx = ContextWithUser(ctx, user)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsPublicPath は未認証でもアクセスできるパスかどうかを返す。
func IsPublicPath(p string) bool {
	if p == "/" {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// IsStaticAsset はゲートを通さない静的ファイルのパスかどうかを返す。
func IsStaticAsset(p string) bool {
	if strings.HasPrefix(p, "/static/") || p == "/favicon.ico" {
		return true
	}
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// LoginRedirectURL は元のクエリを保持したまま redirect=<元のパス> を付けた/loginのURLを返す。
func LoginRedirectURL(r *http.Request) string {
	q := r.URL.Query()
	q.Set("redirect", r.URL.Path)
	return loginPath + "?" + q.Encode()
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if fields, ok := ctx.Value(logFieldsContextKey).(*logFields); ok && user != nil {
		fields.userID = user.ID
	}
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}
