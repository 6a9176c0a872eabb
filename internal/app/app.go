// Package app はmaltresponseの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/maltresponse/internal/auth"
	"github.com/hitoshi/maltresponse/internal/config"
	"github.com/hitoshi/maltresponse/internal/database"
	"github.com/hitoshi/maltresponse/internal/handler"
	"github.com/hitoshi/maltresponse/internal/logger"
	"github.com/hitoshi/maltresponse/internal/metrics"
	"github.com/hitoshi/maltresponse/internal/middleware"
	"github.com/hitoshi/maltresponse/internal/repository"
	"github.com/hitoshi/maltresponse/internal/rpc"
	"github.com/hitoshi/maltresponse/internal/security"
	"github.com/hitoshi/maltresponse/internal/supabase"
	"github.com/hitoshi/maltresponse/internal/user"
	"github.com/hitoshi/maltresponse/internal/view"
)

const (
	dbPingTimeout       = 5 * time.Second
	limiterCleanupEvery = 5 * time.Minute
	shutdownTimeout     = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefaultWithLevel(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// App はワイヤリング済みのHTTPハンドラーと、終了時に解放するリソースを保持する。
type App struct {
	Handler http.Handler

	db      *sql.DB
	redis   *redis.Client
	limiter *middleware.MemoryLimiter
}

// New は設定から全依存関係を構築する。
// DATABASE_URLとREDIS_URLは任意で、未設定の場合はそれぞれプロバイダーREST APIとメモリ内リミッターを使う。
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. プロフィールストア（任意）
	var profileStore repository.ProfileRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		profileStore = repository.NewPostgresProfileRepo(db)
		slog.Info("database connection established")
	}

	// 3. ログイン試行のレート制限
	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		limiter = middleware.NewRedisLimiter(a.redis, cfg.LoginRateLimit, time.Minute)
		slog.Info("using redis login limiter")
	} else {
		a.limiter = middleware.NewMemoryLimiter(cfg.LoginRateLimit, limiterCleanupEvery)
		limiter = a.limiter
	}

	// 4. 認証プロバイダー
	httpClient, err := newProviderHTTPClient(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	client := supabase.NewClient(supabase.Config{
		URL:             cfg.SupabaseURL,
		APIKey:          cfg.SupabasePublishableKey,
		JWTSecret:       cfg.SupabaseJWTSecret,
		EmailRedirectTo: cfg.BaseURL + "/auth/callback",
		HTTPClient:      httpClient,
		CookieSecure:    cfg.CookieSecure,
		CookieDomain:    cfg.CookieDomain,
		Configured:      cfg.AuthConfigured,
	})
	if cfg.AuthConfigured {
		slog.Info("auth provider configured", slog.String("session_cookie", client.StorageKey()))
	} else {
		slog.Warn("auth provider is not configured; session gate is disabled")
	}

	// 5. サービスとビュー
	renderer, err := view.NewRenderer()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	users := user.NewService(security.NewTextSanitizer())
	rpcRouter := rpc.NewAppRouter(users)
	slog.Debug("rpc procedures registered", slog.Any("paths", rpcRouter.Paths()))

	// 6. ルーター
	a.Handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(registry),
		LoginLimiter:      limiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		TrustProxyHeaders: cfg.TrustProxyHeaders,

		AuthEnabled: cfg.AuthConfigured,
		NewProvider: func(w http.ResponseWriter, r *http.Request) handler.Provider {
			return client.ForRequest(supabase.NewRequestCookieJar(w, r))
		},
		ProfileStore: profileStore,

		AuthService: auth.NewService(collector),
		FlowStore:   auth.NewFlowStore(cfg.SessionSecret, cfg.CookieSecure, cfg.CookieDomain),
		UserService: users,
		RPCRouter:   rpcRouter,
		Renderer:    renderer,
	})

	return a, nil
}

// Close は保持しているリソースを解放する。
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
}

// newProviderHTTPClient はプロバイダー呼び出し用のHTTPクライアントを生成する。
// SSRFガード有効時はプライベートアドレスへの接続を拒否する。
// プロバイダーURL自体が拒否対象の場合は起動時にエラーとする。
func newProviderHTTPClient(cfg *config.Config) (*http.Client, error) {
	if !cfg.ProviderSSRFGuard {
		return &http.Client{Timeout: cfg.ProviderTimeout}, nil
	}

	guard := security.NewSSRFGuard()
	if cfg.AuthConfigured {
		if err := guard.ValidateURL(cfg.SupabaseURL); err != nil {
			return nil, fmt.Errorf("auth provider URL rejected by SSRF guard: %w", err)
		}
	}
	return guard.NewSafeClient(cfg.ProviderTimeout), nil
}

// runServe はHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			slog.String("addr", server.Addr),
			slog.Bool("auth_enabled", cfg.AuthConfigured),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, direction string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("direction", direction),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch direction {
	case migrateUp:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case migrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// checkHealth はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用。
func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
