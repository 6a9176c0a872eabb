package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/maltresponse/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
// DATABASE_URLが設定されている場合にPostgRESTの代わりに使用する。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。
// UUIDとして不正なIDおよび該当行なしの場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	profile := &model.Profile{}
	var displayName sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at, updated_at
		 FROM profiles
		 WHERE id = $1`,
		id,
	).Scan(&profile.ID, &displayName, &profile.CreatedAt, &profile.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by id: %w", err)
	}

	if displayName.Valid {
		profile.DisplayName = &displayName.String
	}
	return profile, nil
}

// Ping はprofilesテーブルへの到達性を確認する。
func (r *PostgresProfileRepo) Ping(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `SELECT 1 FROM profiles LIMIT 0`); err != nil {
		return fmt.Errorf("failed to reach profiles: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
