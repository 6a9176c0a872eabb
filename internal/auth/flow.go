package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// FlowCookieName はログインフロー状態を保持するCookie名。
const FlowCookieName = "mr_login"

// flowMaxAge はフロー状態の保持期間（秒）。コード自体の有効期限はプロバイダーが管理する。
const flowMaxAge = 60 * 60

// FlowState はログイン画面の状態。
type FlowState string

const (
	FlowAnonymous     FlowState = "anonymous"
	FlowCodeRequested FlowState = "code-requested"
)

// Flow はログイン画面の状態と、コード送信済みのメールアドレス。
type Flow struct {
	State FlowState
	Email string
}

// FlowStore はFlowを署名付きCookieに保存する。
type FlowStore struct {
	store *sessions.CookieStore
}

// NewFlowStore はFlowStoreを生成する。secretはCookieの署名に使用する。
func NewFlowStore(secret string, secure bool, domain string) *FlowStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/login",
		Domain:   domain,
		MaxAge:   flowMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &FlowStore{store: store}
}

// Load はリクエストからFlowを読み出す。
// Cookieが無い、または署名が不正な場合は匿名状態を返す。
func (f *FlowStore) Load(r *http.Request) Flow {
	session, err := f.store.Get(r, FlowCookieName)
	if err != nil {
		return Flow{State: FlowAnonymous}
	}

	state, _ := session.Values["state"].(string)
	email, _ := session.Values["email"].(string)
	if FlowState(state) != FlowCodeRequested || email == "" {
		return Flow{State: FlowAnonymous}
	}
	return Flow{State: FlowCodeRequested, Email: email}
}

// Save はFlowをCookieに書き込む。匿名状態の保存はClearと同じ。
func (f *FlowStore) Save(w http.ResponseWriter, r *http.Request, flow Flow) error {
	if flow.State != FlowCodeRequested {
		return f.Clear(w, r)
	}

	// 署名不正の既存Cookieは新しいセッションで上書きする
	session, _ := f.store.New(r, FlowCookieName)
	session.Values["state"] = string(flow.State)
	session.Values["email"] = flow.Email
	return session.Save(r, w)
}

// Clear はFlowのCookieを削除する。
func (f *FlowStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := f.store.New(r, FlowCookieName)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
