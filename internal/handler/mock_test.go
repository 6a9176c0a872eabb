package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/maltresponse/internal/auth"
	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/repository"
	"github.com/hitoshi/maltresponse/internal/rpc"
	"github.com/hitoshi/maltresponse/internal/security"
	"github.com/hitoshi/maltresponse/internal/user"
	"github.com/hitoshi/maltresponse/internal/view"
)

// --- モック ---

// mockProvider はProviderのモック実装。
type mockProvider struct {
	signInFn   func(ctx context.Context, email string) error
	verifyFn   func(ctx context.Context, email, code string) (*model.Session, error)
	exchangeFn func(ctx context.Context, code string) (*model.Session, error)
	signOutFn  func(ctx context.Context) error

	claims    *model.Claims
	claimsErr error
	user      *model.User
	userErr   error
	profiles  repository.ProfileRepository

	signInEmails []string
	signOutCalls int
	getUserCalls int
}

func (m *mockProvider) SignInWithOTP(ctx context.Context, email string) error {
	m.signInEmails = append(m.signInEmails, email)
	if m.signInFn != nil {
		return m.signInFn(ctx, email)
	}
	return nil
}

func (m *mockProvider) VerifyOTP(ctx context.Context, email, code string) (*model.Session, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, email, code)
	}
	return &model.Session{AccessToken: "at"}, nil
}

func (m *mockProvider) ExchangeCodeForSession(ctx context.Context, code string) (*model.Session, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return &model.Session{AccessToken: "at"}, nil
}

func (m *mockProvider) SignOut(ctx context.Context) error {
	m.signOutCalls++
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

func (m *mockProvider) GetClaims(ctx context.Context) (*model.Claims, error) {
	return m.claims, m.claimsErr
}

func (m *mockProvider) GetUser(ctx context.Context) (*model.User, error) {
	m.getUserCalls++
	return m.user, m.userErr
}

func (m *mockProvider) Profiles() repository.ProfileRepository {
	return m.profiles
}

// mockProfileRepo はProfileRepositoryのモック実装。
type mockProfileRepo struct {
	profile  *model.Profile
	findErr  error
	pingErr error
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return m.profile, m.findErr
}

func (m *mockProfileRepo) Ping(ctx context.Context) error {
	return m.pingErr
}

// --- ヘルパー ---

const testFlowSecret = "test-flow-secret-32-bytes-long!!"

func newTestRenderer(t *testing.T) *view.Renderer {
	t.Helper()
	r, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	return r
}

func factoryFor(p Provider) ProviderFactory {
	return func(w http.ResponseWriter, r *http.Request) Provider { return p }
}

// newTestDeps はモックプロバイダーを使うRouterDepsを生成する。
func newTestDeps(t *testing.T, p *mockProvider) *RouterDeps {
	t.Helper()
	users := user.NewService(security.NewTextSanitizer())
	return &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		AuthEnabled:       true,
		NewProvider:       factoryFor(p),
		AuthService:       auth.NewService(nil),
		FlowStore:         auth.NewFlowStore(testFlowSecret, false, ""),
		UserService:       users,
		RPCRouter:         rpc.NewAppRouter(users),
		Renderer:          newTestRenderer(t),
	}
}

// carryCookies は前のレスポンスのSet-Cookieを次のリクエストに引き継ぐ。
func carryCookies(rec *httptest.ResponseRecorder, next *http.Request) {
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			continue
		}
		next.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

// findCookie はレスポンスから指定名のCookieを取り出す。
func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// denyAllLimiter は常に拒否するLimiter。
type denyAllLimiter struct{}

func (denyAllLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	return false, time.Minute, nil
}

// recordingLimiter は渡されたキーを記録して拒否するLimiter。
type recordingLimiter struct {
	keys []string
}

func (l *recordingLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	return false, time.Minute, nil
}
