package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/maltresponse/internal/auth"
	"github.com/hitoshi/maltresponse/internal/middleware"
	"github.com/hitoshi/maltresponse/internal/view"
)

// MsgCodeResent は再送成功時に確認画面へ表示するメッセージ。
const MsgCodeResent = "Un nouveau code a ete envoye"

// LoginHandler はワンタイムコードによるログイン画面とアクションを処理する。
type LoginHandler struct {
	service     *auth.Service
	flows       *auth.FlowStore
	renderer    *view.Renderer
	newProvider ProviderFactory
}

// NewLoginHandler はLoginHandlerを生成する。
func NewLoginHandler(service *auth.Service, flows *auth.FlowStore, renderer *view.Renderer, newProvider ProviderFactory) *LoginHandler {
	return &LoginHandler{
		service:     service,
		flows:       flows,
		renderer:    renderer,
		newProvider: newProvider,
	}
}

// Show はログイン画面を表示する。コード送信済みの場合は確認ステップを表示する。
// GET /login?redirect=/path
func (h *LoginHandler) Show(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirect")

	// 認証済みの場合はログイン画面を出さずに遷移する
	if _, ok := middleware.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, auth.SafeRedirectTarget(redirect), http.StatusSeeOther)
		return
	}

	flow := h.flows.Load(r)
	h.render(w, r, flow, redirect, "", "")
}

// Action はログインフォームのアクションを処理する。
// POST /login (action=request-code|verify-code|resend|reset)
func (h *LoginHandler) Action(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respond(w, r, auth.Flow{State: auth.FlowAnonymous}, "", auth.ActionResult{Error: auth.MsgInvalidData}, http.StatusBadRequest)
		return
	}

	action := r.PostFormValue("action")
	redirect := r.PostFormValue("redirect")
	flow := h.flows.Load(r)

	switch action {
	case auth.ActionRequestCode:
		email := r.PostFormValue("email")
		result := h.service.RequestCode(r.Context(), h.newProvider(w, r), email)
		if result.Success {
			flow = auth.Flow{State: auth.FlowCodeRequested, Email: email}
			h.saveFlow(w, r, flow)
		} else {
			flow = auth.Flow{State: auth.FlowAnonymous, Email: email}
		}
		h.respond(w, r, flow, redirect, result, http.StatusOK)

	case auth.ActionVerifyCode:
		email := r.PostFormValue("email")
		if email == "" {
			email = flow.Email
		}
		result := h.service.VerifyCode(r.Context(), h.newProvider(w, r), email, r.PostFormValue("token"), redirect)
		if result.Success {
			h.clearFlow(w, r)
		}
		h.respond(w, r, auth.Flow{State: auth.FlowCodeRequested, Email: email}, redirect, result, http.StatusOK)

	case auth.ActionResend:
		result := h.service.Resend(r.Context(), h.newProvider(w, r), flow)
		h.respond(w, r, flow, redirect, result, http.StatusOK)

	case auth.ActionReset:
		h.clearFlow(w, r)
		h.respond(w, r, auth.Flow{State: auth.FlowAnonymous}, redirect, auth.ActionResult{Success: true}, http.StatusOK)

	default:
		h.respond(w, r, flow, redirect, auth.ActionResult{Error: auth.MsgInvalidData}, http.StatusBadRequest)
	}
}

// respond はアクション結果をJSONまたはHTMLで返す。
// HTMLの場合、画面遷移を伴う結果は303で再読み込みさせ、失敗はフォームにエラーを表示する。
func (h *LoginHandler) respond(w http.ResponseWriter, r *http.Request, flow auth.Flow, redirect string, result auth.ActionResult, status int) {
	if wantsJSON(r) {
		writeJSON(w, status, result)
		return
	}

	switch {
	case result.Success && result.RedirectTo != "":
		http.Redirect(w, r, result.RedirectTo, http.StatusSeeOther)
	case result.Success && r.PostFormValue("action") == auth.ActionResend:
		h.render(w, r, flow, redirect, "", MsgCodeResent)
	case result.Success:
		http.Redirect(w, r, loginURL(redirect), http.StatusSeeOther)
	default:
		h.renderStatus(w, r, flow, redirect, result.Error, "", statusForFailure(status))
	}
}

func (h *LoginHandler) render(w http.ResponseWriter, r *http.Request, flow auth.Flow, redirect, errMsg, notice string) {
	h.renderStatus(w, r, flow, redirect, errMsg, notice, http.StatusOK)
}

func (h *LoginHandler) renderStatus(w http.ResponseWriter, r *http.Request, flow auth.Flow, redirect, errMsg, notice string, status int) {
	step := view.LoginStepEmail
	if flow.State == auth.FlowCodeRequested {
		step = view.LoginStepVerify
	}
	h.renderer.Render(w, view.PageLogin, status, view.LoginData{
		Step:      step,
		Email:     flow.Email,
		Redirect:  redirect,
		Error:     errMsg,
		Notice:    notice,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

func (h *LoginHandler) saveFlow(w http.ResponseWriter, r *http.Request, flow auth.Flow) {
	if err := h.flows.Save(w, r, flow); err != nil {
		slog.Error("failed to save login flow", slog.String("error", err.Error()))
	}
}

func (h *LoginHandler) clearFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.flows.Clear(w, r); err != nil {
		slog.Error("failed to clear login flow", slog.String("error", err.Error()))
	}
}

// statusForFailure はフォーム再表示時のステータス。入力エラーは422とする。
func statusForFailure(status int) int {
	if status == http.StatusOK {
		return http.StatusUnprocessableEntity
	}
	return status
}

// loginURL はredirectを保持した/loginのURLを返す。
func loginURL(redirect string) string {
	if redirect == "" {
		return "/login"
	}
	return "/login?" + url.Values{"redirect": {redirect}}.Encode()
}
