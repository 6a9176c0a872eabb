package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/maltresponse/internal/auth"
	"github.com/hitoshi/maltresponse/internal/view"
)

// authErrorPath は認証失敗時の遷移先。
const authErrorPath = "/auth/error"

// AuthHandler はメールリンクのコールバック、エラー画面、サインアウトを処理する。
type AuthHandler struct {
	service     *auth.Service
	flows       *auth.FlowStore
	renderer    *view.Renderer
	newProvider ProviderFactory
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service *auth.Service, flows *auth.FlowStore, renderer *view.Renderer, newProvider ProviderFactory) *AuthHandler {
	return &AuthHandler{
		service:     service,
		flows:       flows,
		renderer:    renderer,
		newProvider: newProvider,
	}
}

// Callback はメール内リンクの認可コードをセッションに交換する。
// GET /auth/callback?code=xxx&redirect=/path
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. 認可コードの交換
	code := r.URL.Query().Get("code")
	target, err := h.service.ExchangeCode(r.Context(), h.newProvider(w, r), code, r.URL.Query().Get("redirect"))
	if err != nil {
		if !errors.Is(err, auth.ErrMissingCode) {
			slog.Error("auth callback failed", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, authErrorPath, http.StatusTemporaryRedirect)
		return
	}

	// 2. ログインフロー状態を破棄してアプリへ遷移
	if err := h.flows.Clear(w, r); err != nil {
		slog.Warn("failed to clear login flow", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// Error は認証エラー画面を表示する。
// GET /auth/error
func (h *AuthHandler) Error(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, view.PageAuthError, http.StatusOK, nil)
}

// SignOut はセッションを破棄してログイン画面へ遷移する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	// 失敗してもCookieは削除済みのためログインへ遷移する
	if err := h.service.SignOut(r.Context(), h.newProvider(w, r)); err != nil {
		slog.Error("failed to sign out", slog.String("error", err.Error()))
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, auth.ActionResult{Success: true, RedirectTo: "/login"})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
