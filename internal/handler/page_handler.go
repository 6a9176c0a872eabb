package handler

import (
	"net/http"

	"github.com/hitoshi/maltresponse/internal/middleware"
	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/repository"
	"github.com/hitoshi/maltresponse/internal/user"
	"github.com/hitoshi/maltresponse/internal/view"
)

// PageHandler はアプリケーションシェルのページを描画する。
type PageHandler struct {
	renderer     *view.Renderer
	users        *user.Service
	authEnabled  bool
	newProvider  ProviderFactory
	profileStore repository.ProfileRepository
}

// NewPageHandler はPageHandlerを生成する。
// profileStoreがnilの場合はプロバイダーのREST APIでプロフィールを読み出す。
func NewPageHandler(renderer *view.Renderer, users *user.Service, authEnabled bool, newProvider ProviderFactory, profileStore repository.ProfileRepository) *PageHandler {
	return &PageHandler{
		renderer:     renderer,
		users:        users,
		authEnabled:  authEnabled,
		newProvider:  newProvider,
		profileStore: profileStore,
	}
}

// Root はトップページから生成ページへリダイレクトする。
// GET /
func (h *PageHandler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/generate", http.StatusTemporaryRedirect)
}

// Shell はサイドバーとヘッダー付きのプレースホルダーページを返すハンドラーを生成する。
func (h *PageHandler) Shell(page view.Placeholder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.renderer.Render(w, view.PageShell, http.StatusOK, view.ShellData{
			Page:       page,
			ActivePath: r.URL.Path,
			User:       h.userData(w, r),
			CSRFToken:  middleware.CSRFTokenFromContext(r.Context()),
		})
	}
}

// Admin は管理画面のプレースホルダーを返す。
// GET /admin
func (h *PageHandler) Admin(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, view.PageAdmin, http.StatusOK, view.AdminPage)
}

// userData はシェルに表示するユーザー情報を取得する。
func (h *PageHandler) userData(w http.ResponseWriter, r *http.Request) model.UserData {
	if !h.authEnabled {
		return h.users.GetUserData(r.Context(), anonymousUser{}, nil)
	}

	provider := h.newProvider(w, r)
	profiles := h.profileStore
	if profiles == nil {
		profiles = provider.Profiles()
	}
	return h.users.GetUserData(r.Context(), provider, profiles)
}
