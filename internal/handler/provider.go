// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/maltresponse/internal/auth"
	"github.com/hitoshi/maltresponse/internal/middleware"
	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/repository"
	"github.com/hitoshi/maltresponse/internal/supabase"
)

// Provider はリクエストに結び付いた認証プロバイダークライアントのインターフェース。
// supabase.ServerClientが実装する。
type Provider interface {
	auth.OTPProvider
	middleware.ClaimsClient
	GetUser(ctx context.Context) (*model.User, error)
	Profiles() repository.ProfileRepository
}

var _ Provider = (*supabase.ServerClient)(nil)

// ProviderFactory はリクエストごとにProviderを生成する。
// Providerが変更したCookieはレスポンスに書き込まれる。
type ProviderFactory func(w http.ResponseWriter, r *http.Request) Provider

// anonymousUser は認証プロバイダー未設定時のUserGetter。常にユーザーなしを返す。
type anonymousUser struct{}

func (anonymousUser) GetUser(context.Context) (*model.User, error) {
	return nil, nil
}

// wantsJSON はクライアントがJSONレスポンスを要求しているかを判定する。
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
