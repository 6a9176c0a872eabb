package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// placeholderProjectMarker はテンプレートのままの認証プロバイダーURLに含まれる文字列。
const placeholderProjectMarker = "your-project"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Identity provider
	SupabaseURL            string        `env:"SUPABASE_URL"`
	SupabasePublishableKey string        `env:"SUPABASE_PUBLISHABLE_KEY"`
	SupabaseJWTSecret      string        `env:"SUPABASE_JWT_SECRET"`
	ProviderTimeout        time.Duration `env:"AUTH_PROVIDER_TIMEOUT" envDefault:"10s"`
	ProviderSSRFGuard      bool          `env:"AUTH_PROVIDER_SSRF_GUARD" envDefault:"true"`

	// AuthConfigured は認証プロバイダーが設定済みかどうか。
	// Load時に1回だけ判定し、セッションゲートに注入する。
	AuthConfigured bool

	// Session
	SessionSecret string `env:"SESSION_SECRET,required,notEmpty"`

	// Database / Redis（いずれも任意）
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Rate Limit（req/min/IP）
	LoginRateLimit int `env:"LOGIN_RATE_LIMIT" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// リバースプロキシ
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.LoginRateLimit <= 0 {
		return nil, fmt.Errorf("LOGIN_RATE_LIMIT must be positive, got %d", cfg.LoginRateLimit)
	}

	cfg.AuthConfigured = IsProviderConfigured(cfg.SupabaseURL)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// IsProviderConfigured は認証プロバイダーURLが実際の接続先を指しているかを判定する。
// 空文字列およびテンプレートのプレースホルダーURLは未設定として扱う。
func IsProviderConfigured(providerURL string) bool {
	if strings.TrimSpace(providerURL) == "" {
		return false
	}
	return !strings.Contains(providerURL, placeholderProjectMarker)
}
