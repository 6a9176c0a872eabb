package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/maltresponse/internal/auth"
	"github.com/hitoshi/maltresponse/internal/metrics"
	"github.com/hitoshi/maltresponse/internal/middleware"
	"github.com/hitoshi/maltresponse/internal/repository"
	"github.com/hitoshi/maltresponse/internal/rpc"
	"github.com/hitoshi/maltresponse/internal/user"
	"github.com/hitoshi/maltresponse/internal/view"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	LoginLimiter      middleware.Limiter
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string

	// TrustProxyHeaders がtrueの場合、X-Forwarded-For等からクライアントIPを復元する。
	// リバースプロキシ配下でのみ有効にする。
	TrustProxyHeaders bool

	// 認証プロバイダー
	AuthEnabled bool
	NewProvider ProviderFactory

	// ProfileStore は直接接続のプロフィールストア。nilの場合はプロバイダーのREST APIを使う。
	ProfileStore repository.ProfileRepository

	// サービス
	AuthService *auth.Service
	FlowStore   *auth.FlowStore
	UserService *user.Service
	RPCRouter   *rpc.Router
	Renderer    *view.Renderer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	[RealIP] → Recovery → Logging → SecurityHeaders → SessionGate → CSRF
//
// RealIPはTrustProxyHeadersが有効な場合のみ適用する。
// 運用エンドポイント（/health, /metrics）と静的ファイルはセッションゲートの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()
	if deps.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, mc))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))

	// --- 運用エンドポイント ---
	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/static/*", view.StaticHandler())

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	pageHandler := NewPageHandler(deps.Renderer, deps.UserService, deps.AuthEnabled, deps.NewProvider, deps.ProfileStore)
	loginHandler := NewLoginHandler(deps.AuthService, deps.FlowStore, deps.Renderer, deps.NewProvider)
	authHandler := NewAuthHandler(deps.AuthService, deps.FlowStore, deps.Renderer, deps.NewProvider)
	rpcHandler := rpc.NewHandler(deps.RPCRouter, rpcContextFactory(deps), mc)

	// --- セッションゲート配下のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionGateMiddleware(middleware.GateConfig{
			Enabled: deps.AuthEnabled,
			NewClient: func(w http.ResponseWriter, r *http.Request) middleware.ClaimsClient {
				return deps.NewProvider(w, r)
			},
			Metrics: mc,
		}))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// ページ
		r.Get("/", pageHandler.Root)
		r.Get("/generate", pageHandler.Shell(view.GeneratePage))
		r.Get("/documents", pageHandler.Shell(view.DocumentsPage))
		r.Get("/history", pageHandler.Shell(view.HistoryPage))
		r.Get("/profile", pageHandler.Shell(view.ProfilePage))
		r.Get("/admin", pageHandler.Admin)

		// ログイン（POSTのみレート制限）
		r.Get("/login", loginHandler.Show)
		if deps.LoginLimiter != nil {
			r.With(middleware.NewLoginThrottleMiddleware(deps.LoginLimiter)).Post("/login", loginHandler.Action)
		} else {
			r.Post("/login", loginHandler.Action)
		}

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Get("/callback", authHandler.Callback)
			r.Get("/error", authHandler.Error)
			r.Post("/signout", authHandler.SignOut)
		})

		// API
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
			r.Handle("/trpc/*", rpcHandler)
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
		})
	})

	return r
}

// rpcContextFactory はゲートが確定したユーザーとプロフィールストアからRPCコンテキストを生成する。
func rpcContextFactory(deps *RouterDeps) rpc.ContextFactory {
	return func(w http.ResponseWriter, r *http.Request) *rpc.Context {
		u, _ := middleware.UserFromContext(r.Context())

		profiles := deps.ProfileStore
		if profiles == nil && deps.AuthEnabled {
			profiles = deps.NewProvider(w, r).Profiles()
		}
		return rpc.NewContext(profiles, u)
	}
}
