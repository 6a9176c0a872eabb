// Package auth はワンタイムコードによるパスワードレスログインフローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/maltresponse/internal/metrics"
	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/supabase"
)

// ログインフォームに表示するメッセージ。
const (
	MsgInvalidEmail  = "Email invalide"
	MsgSendFailed    = "Erreur lors de l'envoi du code"
	MsgInvalidData   = "Donnees invalides"
	MsgCodeExpired   = "Code expire — demandez un nouveau code"
	MsgCodeIncorrect = "Code incorrect — verifiez votre email et reessayez"
	MsgNoPendingCode = "Aucun code en attente — saisissez votre email"
)

// メトリクスに記録するアクション名と結果。
const (
	ActionRequestCode = "request-code"
	ActionVerifyCode  = "verify-code"
	ActionResend      = "resend"
	ActionReset       = "reset"
	ActionCallback    = "callback"
	ActionSignOut     = "signout"

	outcomeSuccess       = "success"
	outcomeInvalid       = "invalid"
	outcomeProviderError = "provider_error"
	outcomeExpired       = "expired"
)

// OTPProvider はログインフローが使用する認証プロバイダーの操作。
// supabase.ServerClientが実装する。
type OTPProvider interface {
	SignInWithOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*model.Session, error)
	ExchangeCodeForSession(ctx context.Context, code string) (*model.Session, error)
	SignOut(ctx context.Context) error
}

var _ OTPProvider = (*supabase.ServerClient)(nil)

// ActionResult はログインアクションの結果。JSONでもそのまま返す。
type ActionResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

type requestCodeInput struct {
	Email string `validate:"required,email"`
}

type verifyCodeInput struct {
	Email string `validate:"required,email"`
	Code  string `validate:"len=6"`
}

// Service はログインアクションのビジネスロジックを提供する。
type Service struct {
	validate *validator.Validate
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		validate: validator.New(),
		metrics:  mc,
	}
}

// RequestCode はメールアドレスを検証し、ワンタイムコードの送信を依頼する。
// 未登録のメールアドレスの場合、アカウントはプロバイダー側で暗黙的に作成される。
func (s *Service) RequestCode(ctx context.Context, provider OTPProvider, email string) ActionResult {
	return s.sendCode(ctx, provider, email, ActionRequestCode)
}

// Resend はフロー状態に保持しているメールアドレスへコードを再送する。
func (s *Service) Resend(ctx context.Context, provider OTPProvider, flow Flow) ActionResult {
	if flow.State != FlowCodeRequested || flow.Email == "" {
		s.metrics.RecordLoginAction(ActionResend, outcomeInvalid)
		return ActionResult{Error: MsgNoPendingCode}
	}
	return s.sendCode(ctx, provider, flow.Email, ActionResend)
}

func (s *Service) sendCode(ctx context.Context, provider OTPProvider, email, action string) ActionResult {
	// 1. 入力検証
	if err := s.validate.Struct(requestCodeInput{Email: email}); err != nil {
		s.metrics.RecordLoginAction(action, outcomeInvalid)
		return ActionResult{Error: MsgInvalidEmail}
	}

	// 2. プロバイダーへ送信依頼
	start := time.Now()
	err := provider.SignInWithOTP(ctx, email)
	s.metrics.RecordProviderLatency("send_otp", time.Since(start))
	if err != nil {
		slog.Error("failed to send otp",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordLoginAction(action, outcomeProviderError)
		return ActionResult{Error: MsgSendFailed}
	}

	s.metrics.RecordLoginAction(action, outcomeSuccess)
	return ActionResult{Success: true}
}

// VerifyCode はメールとコードを検証し、成功時は検証済みのリダイレクト先を返す。
func (s *Service) VerifyCode(ctx context.Context, provider OTPProvider, email, code, redirect string) ActionResult {
	// 1. 入力検証
	if err := s.validate.Struct(verifyCodeInput{Email: email, Code: code}); err != nil {
		s.metrics.RecordLoginAction(ActionVerifyCode, outcomeInvalid)
		return ActionResult{Error: MsgInvalidData}
	}

	// 2. プロバイダーでコードを検証
	start := time.Now()
	_, err := provider.VerifyOTP(ctx, email, code)
	s.metrics.RecordProviderLatency("verify_otp", time.Since(start))
	if err != nil {
		slog.Warn("otp verification failed", slog.String("error", err.Error()))
		if supabase.IsExpired(err) {
			s.metrics.RecordLoginAction(ActionVerifyCode, outcomeExpired)
			return ActionResult{Error: MsgCodeExpired}
		}
		s.metrics.RecordLoginAction(ActionVerifyCode, outcomeProviderError)
		return ActionResult{Error: MsgCodeIncorrect}
	}

	// 3. 検証済みのリダイレクト先を返す
	s.metrics.RecordLoginAction(ActionVerifyCode, outcomeSuccess)
	return ActionResult{Success: true, RedirectTo: SafeRedirectTarget(redirect)}
}

// ErrMissingCode はコールバックに認可コードが含まれない場合のエラー。
var ErrMissingCode = errors.New("authorization code is missing")

// ExchangeCode はメール内リンクからのコールバックを処理し、リダイレクト先を返す。
func (s *Service) ExchangeCode(ctx context.Context, provider OTPProvider, code, redirect string) (string, error) {
	if code == "" {
		s.metrics.RecordLoginAction(ActionCallback, outcomeInvalid)
		return "", ErrMissingCode
	}

	start := time.Now()
	_, err := provider.ExchangeCodeForSession(ctx, code)
	s.metrics.RecordProviderLatency("exchange_code", time.Since(start))
	if err != nil {
		s.metrics.RecordLoginAction(ActionCallback, outcomeProviderError)
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}

	s.metrics.RecordLoginAction(ActionCallback, outcomeSuccess)
	return SafeRedirectTarget(redirect), nil
}

// SignOut はプロバイダーのセッションを失効させる。
// ローカルのセッションCookieはプロバイダーの成否に関わらず削除される。
func (s *Service) SignOut(ctx context.Context, provider OTPProvider) error {
	start := time.Now()
	err := provider.SignOut(ctx)
	s.metrics.RecordProviderLatency("sign_out", time.Since(start))
	if err != nil {
		s.metrics.RecordLoginAction(ActionSignOut, outcomeProviderError)
		return fmt.Errorf("failed to sign out: %w", err)
	}
	s.metrics.RecordLoginAction(ActionSignOut, outcomeSuccess)
	return nil
}
