package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/supabase"
)

// --- モック定義 ---

type mockProvider struct {
	signInFn   func(ctx context.Context, email string) error
	verifyFn   func(ctx context.Context, email, code string) (*model.Session, error)
	exchangeFn func(ctx context.Context, code string) (*model.Session, error)
	signOutFn  func(ctx context.Context) error

	signInCalls []string
}

func (m *mockProvider) SignInWithOTP(ctx context.Context, email string) error {
	m.signInCalls = append(m.signInCalls, email)
	if m.signInFn != nil {
		return m.signInFn(ctx, email)
	}
	return nil
}

func (m *mockProvider) VerifyOTP(ctx context.Context, email, code string) (*model.Session, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, email, code)
	}
	return &model.Session{AccessToken: "tok"}, nil
}

func (m *mockProvider) ExchangeCodeForSession(ctx context.Context, code string) (*model.Session, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return &model.Session{AccessToken: "tok"}, nil
}

func (m *mockProvider) SignOut(ctx context.Context) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

type recordingMetrics struct {
	actions []string
}

func (r *recordingMetrics) RecordLoginAction(action, outcome string) {
	r.actions = append(r.actions, action+":"+outcome)
}
func (r *recordingMetrics) RecordGateDecision(string) {}
func (r *recordingMetrics) RecordRPCCall(string, string) {}
func (r *recordingMetrics) RecordProviderLatency(string, time.Duration) {}
func (r *recordingMetrics) RecordHTTPStatus(int) {}

// --- RequestCode ---

func TestRequestCode_ValidEmail_Succeeds(t *testing.T) {
	provider := &mockProvider{}
	svc := NewService(nil)

	got := svc.RequestCode(context.Background(), provider, "a@b.com")

	if !got.Success || got.Error != "" {
		t.Fatalf("result = %+v, want success", got)
	}
	if len(provider.signInCalls) != 1 || provider.signInCalls[0] != "a@b.com" {
		t.Errorf("signInCalls = %v", provider.signInCalls)
	}
}

func TestRequestCode_InvalidEmail_DoesNotCallProvider(t *testing.T) {
	provider := &mockProvider{}
	svc := NewService(nil)

	for _, email := range []string{"not-an-email", "", "a@", "@b.com"} {
		got := svc.RequestCode(context.Background(), provider, email)
		if got.Success || got.Error != MsgInvalidEmail {
			t.Errorf("RequestCode(%q) = %+v, want %q", email, got, MsgInvalidEmail)
		}
	}
	if len(provider.signInCalls) != 0 {
		t.Errorf("provider must not be called, got %v", provider.signInCalls)
	}
}

func TestRequestCode_ProviderError(t *testing.T) {
	provider := &mockProvider{
		signInFn: func(ctx context.Context, email string) error {
			return &supabase.AuthError{Status: 429, Message: "email rate limit exceeded"}
		},
	}
	mc := &recordingMetrics{}
	svc := NewService(mc)

	got := svc.RequestCode(context.Background(), provider, "a@b.com")

	if got.Success || got.Error != MsgSendFailed {
		t.Fatalf("result = %+v, want %q", got, MsgSendFailed)
	}
	if len(mc.actions) != 1 || mc.actions[0] != "request-code:provider_error" {
		t.Errorf("metrics = %v", mc.actions)
	}
}

// --- Resend ---

func TestResend_UsesFlowEmail(t *testing.T) {
	provider := &mockProvider{}
	svc := NewService(nil)

	got := svc.Resend(context.Background(), provider, Flow{State: FlowCodeRequested, Email: "jeanne@example.com"})

	if !got.Success {
		t.Fatalf("result = %+v, want success", got)
	}
	if len(provider.signInCalls) != 1 || provider.signInCalls[0] != "jeanne@example.com" {
		t.Errorf("signInCalls = %v", provider.signInCalls)
	}
}

func TestResend_WithoutPendingCode(t *testing.T) {
	provider := &mockProvider{}
	svc := NewService(nil)

	got := svc.Resend(context.Background(), provider, Flow{State: FlowAnonymous})

	if got.Success || got.Error != MsgNoPendingCode {
		t.Fatalf("result = %+v", got)
	}
	if len(provider.signInCalls) != 0 {
		t.Error("provider must not be called")
	}
}

// --- VerifyCode ---

func TestVerifyCode_Success_ReturnsValidatedRedirect(t *testing.T) {
	tests := []struct {
		redirect string
		want     string
	}{
		{"", "/generate"},
		{"/documents", "/documents"},
		{"//evil.com", "/generate"},
		{"https://evil.com", "/generate"},
	}

	svc := NewService(nil)
	for _, tt := range tests {
		t.Run(tt.redirect, func(t *testing.T) {
			got := svc.VerifyCode(context.Background(), &mockProvider{}, "a@b.com", "123456", tt.redirect)
			if !got.Success || got.RedirectTo != tt.want {
				t.Errorf("result = %+v, want redirect %q", got, tt.want)
			}
		})
	}
}

func TestVerifyCode_InvalidInput(t *testing.T) {
	called := false
	provider := &mockProvider{
		verifyFn: func(ctx context.Context, email, code string) (*model.Session, error) {
			called = true
			return nil, nil
		},
	}
	svc := NewService(nil)

	cases := []struct {
		email string
		code  string
	}{
		{"a@b.com", "12345"},
		{"a@b.com", "1234567"},
		{"not-an-email", "123456"},
	}
	for _, c := range cases {
		got := svc.VerifyCode(context.Background(), provider, c.email, c.code, "")
		if got.Success || got.Error != MsgInvalidData {
			t.Errorf("VerifyCode(%q, %q) = %+v, want %q", c.email, c.code, got, MsgInvalidData)
		}
	}
	if called {
		t.Error("provider must not be called for invalid input")
	}
}

func TestVerifyCode_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"expired message", &supabase.AuthError{Status: 403, Code: "otp_expired", Message: "Token has expired or is invalid"}, MsgCodeExpired},
		{"expired in message only", &supabase.AuthError{Status: 400, Message: "code expired"}, MsgCodeExpired},
		{"wrong code", &supabase.AuthError{Status: 400, Message: "Invalid code"}, MsgCodeIncorrect},
		{"network", errors.New("dial tcp: connection refused"), MsgCodeIncorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{
				verifyFn: func(ctx context.Context, email, code string) (*model.Session, error) {
					return nil, tt.err
				},
			}
			got := NewService(nil).VerifyCode(context.Background(), provider, "a@b.com", "123456", "/documents")
			if got.Success || got.Error != tt.want || got.RedirectTo != "" {
				t.Errorf("result = %+v, want error %q", got, tt.want)
			}
		})
	}
}

// --- ExchangeCode ---

func TestExchangeCode(t *testing.T) {
	svc := NewService(nil)

	target, err := svc.ExchangeCode(context.Background(), &mockProvider{}, "abc", "/history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != "/history" {
		t.Errorf("target = %q, want /history", target)
	}

	target, err = svc.ExchangeCode(context.Background(), &mockProvider{}, "abc", "//evil.com")
	if err != nil || target != "/generate" {
		t.Errorf("target = %q, err = %v; want /generate", target, err)
	}
}

func TestExchangeCode_MissingCode(t *testing.T) {
	_, err := NewService(nil).ExchangeCode(context.Background(), &mockProvider{}, "", "/")
	if !errors.Is(err, ErrMissingCode) {
		t.Errorf("err = %v, want ErrMissingCode", err)
	}
}

func TestExchangeCode_ProviderError(t *testing.T) {
	provider := &mockProvider{
		exchangeFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, &supabase.AuthError{Status: 400, Code: "pkce_verifier_missing"}
		},
	}
	_, err := NewService(nil).ExchangeCode(context.Background(), provider, "abc", "/")
	var ae *supabase.AuthError
	if !errors.As(err, &ae) {
		t.Errorf("err = %v, want wrapped AuthError", err)
	}
}

// --- SignOut ---

func TestSignOut_PropagatesError(t *testing.T) {
	provider := &mockProvider{
		signOutFn: func(ctx context.Context) error { return errors.New("boom") },
	}
	if err := NewService(nil).SignOut(context.Background(), provider); err == nil {
		t.Fatal("expected error")
	}
	if err := NewService(nil).SignOut(context.Background(), &mockProvider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
