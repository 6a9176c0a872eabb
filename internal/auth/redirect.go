package auth

import "strings"

// DefaultRedirectTarget はログイン後のデフォルトの遷移先。
const DefaultRedirectTarget = "/generate"

// SafeRedirectTarget はオープンリダイレクトを防ぐため、同一オリジンの
// 絶対パスのみを受け入れる。それ以外はDefaultRedirectTargetを返す。
func SafeRedirectTarget(target string) string {
	if !strings.HasPrefix(target, "/") {
		return DefaultRedirectTarget
	}
	// "//host" と "/\host" はブラウザがプロトコル相対URLとして解釈する
	if strings.HasPrefix(target, "//") || strings.ContainsRune(target, '\\') {
		return DefaultRedirectTarget
	}
	// ブラウザはタブと改行を取り除くため "/\t/host" も "//host" になる
	if strings.ContainsFunc(target, isControlChar) {
		return DefaultRedirectTarget
	}
	return target
}

func isControlChar(r rune) bool {
	return r < 0x20 || r == 0x7f
}
