// Package view はサーバーサイドのHTMLレンダリングを提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hitoshi/maltresponse/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// ページ名
const (
	PageShell     = "shell"
	PageAdmin     = "admin"
	PageLogin     = "login"
	PageAuthError = "auth_error"
)

// pageFiles はページごとに base.html と組み合わせるテンプレート。
var pageFiles = map[string][]string{
	PageShell:     {"templates/shell.html"},
	PageAdmin:     {"templates/admin.html"},
	PageLogin:     {"templates/login.html"},
	PageAuthError: {"templates/auth_error.html"},
}

// ログイン画面のステップ
const (
	LoginStepEmail  = "email"
	LoginStepVerify = "verify"
)

// ShellData はサイドバーとヘッダーを持つページのデータ。
type ShellData struct {
	Page       Placeholder
	ActivePath string
	User       model.UserData
	CSRFToken  string
}

// Nav はサイドバーの主要ナビゲーションを返す。
func (d ShellData) Nav() []NavLink {
	return navLinks(NavItems, d.ActivePath)
}

// Admin は管理画面へのナビゲーション項目を返す。
func (d ShellData) Admin() NavLink {
	return navLinks([]NavItem{AdminItem}, d.ActivePath)[0]
}

// UserText はユーザーメニューに表示する名前を返す。
func (d ShellData) UserText() string {
	return DisplayText(d.User)
}

// UserInitial はアバターの頭文字を返す。
func (d ShellData) UserInitial() string {
	return Initial(d.User)
}

// LoginData はログイン画面のデータ。
type LoginData struct {
	Step      string
	Email     string
	Redirect  string
	Error     string
	Notice    string
	CSRFToken string
}

// Renderer は埋め込みテンプレートからページを描画する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は全ページのテンプレートを解析したRendererを生成する。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageFiles))
	for name, files := range pageFiles {
		patterns := append([]string{"templates/base.html"}, files...)
		tmpl, err := template.New(name).ParseFS(templatesFS, patterns...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse templates for %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render はページをバッファに描画してからレスポンスに書き込む。
// 描画に失敗した場合は500を返す。
func (r *Renderer) Render(w http.ResponseWriter, page string, status int, data any) {
	tmpl, ok := r.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// StaticHandler は埋め込みの静的ファイルを配信するハンドラーを返す。
// /static/ にマウントする。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
