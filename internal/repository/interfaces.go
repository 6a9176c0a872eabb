// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/maltresponse/internal/model"
)

// ProfileRepository はプロフィールデータの読み取りインターフェース。
// このアプリケーションはプロフィールを書き込まない。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Ping はプロフィールストアに到達できるかを確認する。ヘルスチェックで使用する。
	Ping(ctx context.Context) error
}
