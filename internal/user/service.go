// Package user はUIシェルに表示するユーザー情報の取得を提供する。
package user

import (
	"context"
	"log/slog"

	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/repository"
	"github.com/hitoshi/maltresponse/internal/security"
)

// UserGetter は現在のリクエストのユーザーを返す。
// セッションが無い場合は (nil, nil) を返す。supabase.ServerClientが実装する。
type UserGetter interface {
	GetUser(ctx context.Context) (*model.User, error)
}

// Service はユーザー情報の読み取りサービス。
// キャッシュは持たず、呼び出しごとにプロバイダーとプロフィールストアを参照する。
type Service struct {
	sanitizer security.TextSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(sanitizer security.TextSanitizerService) *Service {
	return &Service{sanitizer: sanitizer}
}

// GetUserData は現在のユーザーのメールアドレスと表示名を返す。
// セッションが無い場合はメールアドレスが空文字列、表示名がnilになる。
// プロフィールの取得に失敗した場合は表示名なしとして扱う。
func (s *Service) GetUserData(ctx context.Context, getter UserGetter, profiles repository.ProfileRepository) model.UserData {
	// 1. ユーザーの取得
	u, err := getter.GetUser(ctx)
	if err != nil {
		slog.Warn("failed to get user for shell", slog.String("error", err.Error()))
		return model.UserData{}
	}
	if u == nil {
		return model.UserData{}
	}

	data := model.UserData{Email: u.Email}
	if profiles == nil {
		return data
	}

	// 2. プロフィールの取得
	profile, err := profiles.FindByID(ctx, u.ID)
	if err != nil {
		slog.Debug("profile lookup failed",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		return data
	}
	if profile == nil || profile.DisplayName == nil {
		return data
	}

	// 3. 表示名をプレーンテキスト化（プロフィールがあれば空文字列でもnilにしない）
	name := s.sanitizer.Sanitize(*profile.DisplayName)
	data.DisplayName = &name
	return data
}
