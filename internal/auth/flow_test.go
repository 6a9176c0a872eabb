package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const testSecret = "test-session-secret-32bytes-long!"

func TestFlowStore_SaveAndLoad(t *testing.T) {
	store := NewFlowStore(testSecret, false, "")

	// 1. コード送信後の状態を保存
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if err := store.Save(rec, req, Flow{State: FlowCodeRequested, Email: "jeanne@example.com"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != FlowCookieName {
		t.Fatalf("cookies = %v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].Path != "/login" {
		t.Errorf("unexpected cookie attributes: %+v", cookies[0])
	}

	// 2. 次のリクエストで読み出す
	next := httptest.NewRequest(http.MethodGet, "/login", nil)
	next.AddCookie(cookies[0])
	got := store.Load(next)
	if got.State != FlowCodeRequested || got.Email != "jeanne@example.com" {
		t.Errorf("Load() = %+v", got)
	}
}

func TestFlowStore_LoadWithoutCookie(t *testing.T) {
	store := NewFlowStore(testSecret, false, "")
	got := store.Load(httptest.NewRequest(http.MethodGet, "/login", nil))
	if got.State != FlowAnonymous || got.Email != "" {
		t.Errorf("Load() = %+v, want anonymous", got)
	}
}

func TestFlowStore_TamperedCookieIsAnonymous(t *testing.T) {
	store := NewFlowStore(testSecret, false, "")
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: FlowCookieName, Value: "tampered-value"})

	if got := store.Load(req); got.State != FlowAnonymous {
		t.Errorf("Load() = %+v, want anonymous", got)
	}
}

func TestFlowStore_OtherSecretRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if err := NewFlowStore(testSecret, false, "").Save(rec, req, Flow{State: FlowCodeRequested, Email: "a@b.com"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	next := httptest.NewRequest(http.MethodGet, "/login", nil)
	next.AddCookie(rec.Result().Cookies()[0])
	if got := NewFlowStore("another-secret-another-secret-xx", false, "").Load(next); got.State != FlowAnonymous {
		t.Errorf("Load() = %+v, want anonymous", got)
	}
}

func TestFlowStore_ClearExpiresCookie(t *testing.T) {
	store := NewFlowStore(testSecret, true, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)

	if err := store.Save(rec, req, Flow{State: FlowAnonymous}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected an expiring cookie, got %+v", cookies)
	}
	if !cookies[0].Secure {
		t.Error("cookie should be Secure when configured")
	}
}
