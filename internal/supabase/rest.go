package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/repository"
)

var _ repository.ProfileRepository = (*RESTProfileRepository)(nil)

// profileRow はPostgRESTが返すprofilesテーブルの行。
type profileRow struct {
	ID          string    `json:"id"`
	DisplayName *string   `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RESTProfileRepository はPostgREST経由でprofilesテーブルを読み出す。
// 行レベルセキュリティにより、自分のプロフィールのみ参照できる。
type RESTProfileRepository struct {
	server *ServerClient
}

func (r *RESTProfileRepository) accessToken(ctx context.Context) (string, error) {
	session, err := r.server.Session(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", nil
	}
	return session.AccessToken, nil
}

// FindByID はIDでプロフィールを検索する。見つからない場合は (nil, nil) を返す。
func (r *RESTProfileRepository) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	token, err := r.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"select": {"id,display_name,created_at,updated_at"},
		"id":     {"eq." + id},
	}
	header := http.Header{"Accept": {"application/vnd.pgrst.object+json"}}

	var row profileRow
	err = r.server.client.request(ctx, http.MethodGet, "/rest/v1/profiles", query, nil, token, header, &row)
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) && (ae.Status == http.StatusNotAcceptable || ae.Code == "PGRST116") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find profile by id: %w", err)
	}

	return &model.Profile{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// Ping はprofilesテーブルに到達できるかを確認する。
func (r *RESTProfileRepository) Ping(ctx context.Context) error {
	token, err := r.accessToken(ctx)
	if err != nil {
		return err
	}
	query := url.Values{"select": {"id"}, "limit": {"0"}}
	var rows []profileRow
	if err := r.server.client.request(ctx, http.MethodGet, "/rest/v1/profiles", query, nil, token, nil, &rows); err != nil {
		return fmt.Errorf("failed to reach profiles: %w", err)
	}
	return nil
}
