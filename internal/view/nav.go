package view

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/maltresponse/internal/model"
)

// NavItem はサイドバーのナビゲーション項目。
type NavItem struct {
	Name    string
	Route   string
	Icon    string
	Primary bool
}

// NavItems はサイドバー上部の主要ナビゲーション。
var NavItems = []NavItem{
	{Name: "Generer", Route: "/generate", Icon: "sparkles", Primary: true},
	{Name: "Documents", Route: "/documents", Icon: "file-text"},
	{Name: "Historique", Route: "/history", Icon: "clock"},
}

// AdminItem は区切り線の下に表示する管理画面への項目。
var AdminItem = NavItem{Name: "Administration", Route: "/admin", Icon: "shield"}

// NavLink はテンプレートに渡すナビゲーション項目と選択状態。
type NavLink struct {
	NavItem
	Active bool
}

// navLinks は現在のパスに応じて選択状態を付けた項目を返す。
func navLinks(items []NavItem, activePath string) []NavLink {
	links := make([]NavLink, 0, len(items))
	for _, item := range items {
		links = append(links, NavLink{NavItem: item, Active: item.Route == activePath})
	}
	return links
}

// DisplayText はユーザーメニューに表示する名前を返す。表示名が無ければメールアドレス。
func DisplayText(u model.UserData) string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Email
}

// Initial はアバターに表示する大文字の頭文字を返す。
func Initial(u model.UserData) string {
	text := strings.TrimSpace(DisplayText(u))
	if text == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(r))
}
