package supabase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/maltresponse/internal/model"
)

// userPayload はプロバイダーのユーザーJSON表現。
type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// sessionPayload はトークン応答およびCookie保存時のセッションJSON表現。
type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in,omitempty"`
	ExpiresAt    int64        `json:"expires_at,omitempty"`
	User         *userPayload `json:"user,omitempty"`
}

func (p *sessionPayload) toModel(now time.Time) *model.Session {
	s := &model.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
	}
	switch {
	case p.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(p.ExpiresAt, 0)
	case p.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(p.ExpiresIn) * time.Second)
	}
	if p.User != nil {
		s.User = &model.User{ID: p.User.ID, Email: p.User.Email}
	}
	return s
}

func sessionToPayload(s *model.Session) *sessionPayload {
	p := &sessionPayload{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	if !s.ExpiresAt.IsZero() {
		p.ExpiresAt = s.ExpiresAt.Unix()
	}
	if s.User != nil {
		p.User = &userPayload{ID: s.User.ID, Email: s.User.Email}
	}
	return p
}

// sendOTP はメールアドレス宛てにワンタイムコードを送信する。
// 未登録のメールアドレスの場合はユーザーを作成する。
func (c *Client) sendOTP(ctx context.Context, email, codeChallenge string) error {
	body := map[string]any{
		"email":                 email,
		"create_user":           true,
		"code_challenge":        codeChallenge,
		"code_challenge_method": "s256",
	}
	var query url.Values
	if c.cfg.EmailRedirectTo != "" {
		query = url.Values{"redirect_to": {c.cfg.EmailRedirectTo}}
	}
	return c.request(ctx, http.MethodPost, "/auth/v1/otp", query, body, "", nil, nil)
}

// verifyOTP はメールとコードの組を検証し、発行されたセッションを返す。
func (c *Client) verifyOTP(ctx context.Context, email, token string) (*model.Session, error) {
	body := map[string]string{
		"type":  "email",
		"email": email,
		"token": token,
	}
	var out sessionPayload
	if err := c.request(ctx, http.MethodPost, "/auth/v1/verify", nil, body, "", nil, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &AuthError{Status: http.StatusBadGateway, Code: "session_missing", Message: "verify response did not include a session"}
	}
	return out.toModel(c.now()), nil
}

// exchangeCode はPKCEの認可コードをセッションに交換する。
func (c *Client) exchangeCode(ctx context.Context, code, verifier string) (*model.Session, error) {
	body := map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}
	var out sessionPayload
	query := url.Values{"grant_type": {"pkce"}}
	if err := c.request(ctx, http.MethodPost, "/auth/v1/token", query, body, "", nil, &out); err != nil {
		return nil, err
	}
	return out.toModel(c.now()), nil
}

// refresh はリフレッシュトークンで新しいセッションを取得する。
func (c *Client) refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var out sessionPayload
	query := url.Values{"grant_type": {"refresh_token"}}
	if err := c.request(ctx, http.MethodPost, "/auth/v1/token", query, body, "", nil, &out); err != nil {
		return nil, err
	}
	return out.toModel(c.now()), nil
}

// getUser はアクセストークンをプロバイダーに照会し、ユーザーを返す。
func (c *Client) getUser(ctx context.Context, accessToken string) (*model.User, error) {
	var out userPayload
	if err := c.request(ctx, http.MethodGet, "/auth/v1/user", nil, nil, accessToken, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &AuthError{Status: http.StatusUnauthorized, Code: "user_not_found", Message: "user not found"}
	}
	return &model.User{ID: out.ID, Email: out.Email}, nil
}

// logout はアクセストークンに紐付くセッションをプロバイダー側で失効させる。
func (c *Client) logout(ctx context.Context, accessToken string) error {
	query := url.Values{"scope": {"local"}}
	return c.request(ctx, http.MethodPost, "/auth/v1/logout", query, nil, accessToken, nil, nil)
}

// newCodeVerifier はPKCEのcode_verifierとcode_challenge（S256）を生成する。
func newCodeVerifier() (verifier, challenge string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}
