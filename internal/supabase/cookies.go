package supabase

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/maltresponse/internal/model"
)

const (
	// maxChunkSize は1つのCookieに格納する値の最大長。
	// ブラウザの4KB制限から名前と属性の分を差し引いた値。
	maxChunkSize = 3180

	// base64Prefix はbase64url化したセッション値の接頭辞。
	base64Prefix = "base64-"

	// cookieMaxAge はセッションCookieの保持期間（400日）。
	cookieMaxAge = 400 * 24 * 60 * 60

	codeVerifierSuffix = "-code-verifier"
)

// CookieJar はリクエスト単位のCookie読み書きを抽象化する。
// SetAllで書き込まれた値は同一リクエスト内の後続のGetAllからも見える。
type CookieJar interface {
	GetAll() []*http.Cookie
	SetAll(cookies []*http.Cookie)
}

// RequestCookieJar はhttp.Requestとhttp.ResponseWriterに結び付いたCookieJar。
// 書き込みはリクエストのCookieヘッダーとレスポンスのSet-Cookieの両方に反映する。
type RequestCookieJar struct {
	w http.ResponseWriter
	r *http.Request
}

// NewRequestCookieJar はRequestCookieJarを生成する。
// wがnilの場合はリクエスト側にのみ反映する。
func NewRequestCookieJar(w http.ResponseWriter, r *http.Request) *RequestCookieJar {
	return &RequestCookieJar{w: w, r: r}
}

// GetAll はリクエストに含まれる全Cookieを返す。
func (j *RequestCookieJar) GetAll() []*http.Cookie {
	return j.r.Cookies()
}

// SetAll はCookieを書き込む。MaxAgeが負のCookieは削除として扱う。
func (j *RequestCookieJar) SetAll(cookies []*http.Cookie) {
	current := j.r.Cookies()
	for _, c := range cookies {
		idx := -1
		for i, existing := range current {
			if existing.Name == c.Name {
				idx = i
				break
			}
		}
		switch {
		case c.MaxAge < 0 && idx >= 0:
			current = append(current[:idx], current[idx+1:]...)
		case c.MaxAge < 0:
		case idx >= 0:
			current[idx] = &http.Cookie{Name: c.Name, Value: c.Value}
		default:
			current = append(current, &http.Cookie{Name: c.Name, Value: c.Value})
		}

		if j.w != nil {
			http.SetCookie(j.w, c)
		}
	}

	parts := make([]string, 0, len(current))
	for _, c := range current {
		parts = append(parts, c.Name+"="+c.Value)
	}
	if len(parts) == 0 {
		j.r.Header.Del("Cookie")
		return
	}
	j.r.Header.Set("Cookie", strings.Join(parts, "; "))
}

// cookieStorage はセッションをCookieに保存する。
// 値が大きい場合は "<key>.0", "<key>.1" ... に分割する。
type cookieStorage struct {
	jar    CookieJar
	key    string
	secure bool
	domain string
	now    func() time.Time
}

func (s *cookieStorage) cookieMap() map[string]string {
	m := make(map[string]string)
	for _, c := range s.jar.GetAll() {
		m[c.Name] = c.Value
	}
	return m
}

// readChunked は分割されたCookieを結合して返す。存在しない場合は空文字列。
func (s *cookieStorage) readChunked(name string) string {
	m := s.cookieMap()
	if v, ok := m[name]; ok {
		return v
	}
	var b strings.Builder
	for i := 0; ; i++ {
		v, ok := m[name+"."+strconv.Itoa(i)]
		if !ok {
			break
		}
		b.WriteString(v)
	}
	return b.String()
}

// writeChunked は値を分割して書き込み、不要になった既存チャンクを削除する。
// 空文字列の書き込みは全チャンクの削除を意味する。
func (s *cookieStorage) writeChunked(name, value string) {
	existing := make(map[string]bool)
	for cookieName := range s.cookieMap() {
		if isChunkOf(cookieName, name) {
			existing[cookieName] = true
		}
	}

	var out []*http.Cookie
	keep := make(map[string]bool)
	if value != "" {
		chunks := splitChunks(value, maxChunkSize)
		for i, chunk := range chunks {
			chunkName := name
			if len(chunks) > 1 {
				chunkName = name + "." + strconv.Itoa(i)
			}
			keep[chunkName] = true
			out = append(out, s.newCookie(chunkName, chunk, cookieMaxAge))
		}
	}

	stale := make([]string, 0, len(existing))
	for cookieName := range existing {
		if !keep[cookieName] {
			stale = append(stale, cookieName)
		}
	}
	sort.Strings(stale)
	for _, cookieName := range stale {
		out = append(out, s.newCookie(cookieName, "", -1))
	}

	if len(out) > 0 {
		s.jar.SetAll(out)
	}
}

func (s *cookieStorage) newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// isChunkOf はcookieNameがnameそのもの、またはその分割チャンクかどうかを返す。
func isChunkOf(cookieName, name string) bool {
	if cookieName == name {
		return true
	}
	suffix, ok := strings.CutPrefix(cookieName, name+".")
	if !ok {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}

func splitChunks(value string, size int) []string {
	var chunks []string
	for len(value) > size {
		chunks = append(chunks, value[:size])
		value = value[size:]
	}
	return append(chunks, value)
}

// loadSession はCookieからセッションを読み出す。Cookieが無い場合はnil。
func (s *cookieStorage) loadSession() (*model.Session, error) {
	raw := s.readChunked(s.key)
	if raw == "" {
		return nil, nil
	}
	session, err := decodeSession(raw, s.now())
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *cookieStorage) saveSession(session *model.Session) error {
	value, err := encodeSession(session)
	if err != nil {
		return err
	}
	s.writeChunked(s.key, value)
	return nil
}

func (s *cookieStorage) removeSession() {
	s.writeChunked(s.key, "")
}

func (s *cookieStorage) verifierKey() string {
	return s.key + codeVerifierSuffix
}

func (s *cookieStorage) loadVerifier() string {
	return s.readChunked(s.verifierKey())
}

func (s *cookieStorage) saveVerifier(verifier string) {
	s.writeChunked(s.verifierKey(), verifier)
}

func (s *cookieStorage) removeVerifier() {
	s.writeChunked(s.verifierKey(), "")
}

// encodeSession はセッションを "base64-" + base64url(JSON) 形式にエンコードする。
func encodeSession(session *model.Session) (string, error) {
	data, err := json.Marshal(sessionToPayload(session))
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return base64Prefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// decodeSession はCookie値からセッションを復元する。
// 接頭辞の無い値は生のJSONとして扱う。
func decodeSession(raw string, now time.Time) (*model.Session, error) {
	data := []byte(raw)
	if encoded, ok := strings.CutPrefix(raw, base64Prefix); ok {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("failed to decode session cookie: %w", err)
		}
		data = decoded
	}

	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse session cookie: %w", err)
	}
	if p.AccessToken == "" {
		return nil, fmt.Errorf("session cookie has no access token")
	}
	return p.toModel(now), nil
}
