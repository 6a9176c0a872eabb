package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hitoshi/maltresponse/internal/user"
)

// HealthStatus はhealth.checkの応答。
type HealthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Auth      string    `json:"auth"`
	Timestamp time.Time `json:"timestamp"`
}

// ヘルスチェックの値
const (
	DatabaseConnected = "connected"
	DatabaseError     = "error"
	AuthAuthenticated = "authenticated"
	AuthAnonymous     = "anonymous"
)

// pingTimeout はプロフィールストア確認のタイムアウト。
const pingTimeout = 3 * time.Second

// NewAppRouter はアプリケーションの全プロシージャを登録したRouterを生成する。
func NewAppRouter(users *user.Service) *Router {
	r := NewRouter()
	r.Register("health.check", Procedure{Query: healthCheck(time.Now)})
	r.Register("viewer.me", Procedure{Authed: true, Query: viewerMe(users)})
	return r
}

// healthCheck はプロフィールテーブルへの簡易読み取りで疎通を確認する。
func healthCheck(now func() time.Time) QueryFunc {
	return func(ctx context.Context, rc *Context, _ json.RawMessage) (any, error) {
		status := HealthStatus{
			Status:    "ok",
			Database:  DatabaseConnected,
			Auth:      AuthAnonymous,
			Timestamp: now().UTC(),
		}

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if rc.Profiles == nil {
			status.Database = DatabaseError
		} else if err := rc.Profiles.Ping(pingCtx); err != nil {
			slog.Warn("profiles ping failed", slog.String("error", err.Error()))
			status.Database = DatabaseError
		}

		if rc.Authenticated() {
			status.Auth = AuthAuthenticated
		}
		return status, nil
	}
}

// viewerMe は呼び出し元ユーザーのUserDataを返す。
func viewerMe(users *user.Service) QueryFunc {
	return func(ctx context.Context, rc *Context, _ json.RawMessage) (any, error) {
		return users.GetUserData(ctx, rc, rc.Profiles), nil
	}
}
