package supabase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/repository"
)

// expiryMargin はアクセストークンの期限切れを見越して更新する猶予時間。
const expiryMargin = 10 * time.Second

// ServerClient は1つのHTTPリクエストに結び付いたプロバイダークライアント。
// セッションの読み書きはCookieJarを通して行う。
type ServerClient struct {
	client  *Client
	storage *cookieStorage
}

// ForRequest はCookieJarに結び付いたServerClientを生成する。
func (c *Client) ForRequest(jar CookieJar) *ServerClient {
	return &ServerClient{
		client: c,
		storage: &cookieStorage{
			jar:    jar,
			key:    c.storageKey,
			secure: c.cfg.CookieSecure,
			domain: c.cfg.CookieDomain,
			now:    c.now,
		},
	}
}

// Session は現在のセッションを返す。期限切れの場合はリフレッシュを試みる。
// セッションが無い場合は (nil, nil) を返す。
func (s *ServerClient) Session(ctx context.Context) (*model.Session, error) {
	if !s.client.Configured() {
		return nil, ErrNotConfigured
	}

	session, err := s.storage.loadSession()
	if err != nil {
		// 壊れたCookieは未ログインとして扱う
		s.storage.removeSession()
		return nil, nil
	}
	if session == nil {
		return nil, nil
	}
	if !session.Expired(s.client.now(), expiryMargin) {
		return session, nil
	}

	if session.RefreshToken == "" {
		s.storage.removeSession()
		return nil, nil
	}

	refreshed, err := s.client.refresh(ctx, session.RefreshToken)
	if err != nil {
		if isSessionRejected(err) {
			s.storage.removeSession()
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	if err := s.storage.saveSession(refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// GetClaims はセッションのアクセストークンを検証し、クレームを返す。
// JWTシークレットが設定されていればローカル検証し、無ければプロバイダーに照会する。
// セッションが無い場合は (nil, nil) を返す。
func (s *ServerClient) GetClaims(ctx context.Context) (*model.Claims, error) {
	session, err := s.Session(ctx)
	if err != nil || session == nil {
		return nil, err
	}

	if secret := s.client.cfg.JWTSecret; secret != "" {
		claims, err := verifyAccessToken(session.AccessToken, secret, s.client.now)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}

	user, err := s.client.getUser(ctx, session.AccessToken)
	if err != nil {
		if isSessionRejected(err) {
			s.storage.removeSession()
		}
		return nil, err
	}

	claims := &model.Claims{Subject: user.ID, Email: user.Email}
	if parsed, err := readUnverifiedClaims(session.AccessToken); err == nil {
		claims.Role = parsed.Role
		if parsed.ExpiresAt != nil {
			claims.ExpiresAt = parsed.ExpiresAt.Time
		}
	}
	return claims, nil
}

// GetUser はプロバイダーに照会した現在のユーザーを返す。
// セッションが無い場合は (nil, nil) を返す。
func (s *ServerClient) GetUser(ctx context.Context) (*model.User, error) {
	session, err := s.Session(ctx)
	if err != nil || session == nil {
		return nil, err
	}

	user, err := s.client.getUser(ctx, session.AccessToken)
	if err != nil {
		if isSessionRejected(err) {
			s.storage.removeSession()
		}
		return nil, err
	}
	return user, nil
}

// SignInWithOTP はワンタイムコードの送信を依頼する。
// PKCEのcode_verifierはCookieに保存し、メール内リンクからのコールバックで使用する。
func (s *ServerClient) SignInWithOTP(ctx context.Context, email string) error {
	if !s.client.Configured() {
		return ErrNotConfigured
	}

	verifier, challenge, err := newCodeVerifier()
	if err != nil {
		return err
	}
	if err := s.client.sendOTP(ctx, email, challenge); err != nil {
		return err
	}
	s.storage.saveVerifier(verifier)
	return nil
}

// VerifyOTP はメールとコードを検証し、成功時はセッションをCookieに保存する。
func (s *ServerClient) VerifyOTP(ctx context.Context, email, code string) (*model.Session, error) {
	session, err := s.client.verifyOTP(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if err := s.storage.saveSession(session); err != nil {
		return nil, err
	}
	s.storage.removeVerifier()
	return session, nil
}

// ExchangeCodeForSession はコールバックの認可コードをセッションに交換する。
func (s *ServerClient) ExchangeCodeForSession(ctx context.Context, code string) (*model.Session, error) {
	if !s.client.Configured() {
		return nil, ErrNotConfigured
	}

	verifier := s.storage.loadVerifier()
	if verifier == "" {
		return nil, &AuthError{
			Status:  http.StatusBadRequest,
			Code:    "pkce_verifier_missing",
			Message: "code verifier not found in storage",
		}
	}

	session, err := s.client.exchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	if err := s.storage.saveSession(session); err != nil {
		return nil, err
	}
	s.storage.removeVerifier()
	return session, nil
}

// SignOut はプロバイダー側のセッションを失効させ、Cookieを削除する。
// プロバイダー呼び出しの成否に関わらずローカルのセッションは必ず削除する。
func (s *ServerClient) SignOut(ctx context.Context) error {
	if !s.client.Configured() {
		return ErrNotConfigured
	}

	session, loadErr := s.storage.loadSession()
	s.storage.removeSession()
	s.storage.removeVerifier()

	if loadErr != nil || session == nil {
		return nil
	}
	if err := s.client.logout(ctx, session.AccessToken); err != nil && !isSessionRejected(err) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Profiles は現在のセッション権限でプロフィールを読み出すリポジトリを返す。
func (s *ServerClient) Profiles() repository.ProfileRepository {
	return &RESTProfileRepository{server: s}
}
