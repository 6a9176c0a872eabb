package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/security"
	"github.com/hitoshi/maltresponse/internal/user"
)

// recordingMetrics はRPC呼び出しを記録するメトリクスモック。
type recordingMetrics struct {
	calls []string
}

func (m *recordingMetrics) RecordLoginAction(action, outcome string) {}
func (m *recordingMetrics) RecordGateDecision(decision string) {}
func (m *recordingMetrics) RecordProviderLatency(op string, d time.Duration) {}
func (m *recordingMetrics) RecordHTTPStatus(statusCode int) {}
func (m *recordingMetrics) RecordRPCCall(path, code string) {
	m.calls = append(m.calls, path+":"+code)
}

type testServer struct {
	handler  http.Handler
	metrics  *recordingMetrics
	contexts int
}

func newTestServer(repo *mockProfileRepo, u *model.User) *testServer {
	ts := &testServer{metrics: &recordingMetrics{}}
	h := NewHandler(NewAppRouter(user.NewService(security.NewTextSanitizer())), func(w http.ResponseWriter, r *http.Request) *Context {
		ts.contexts++
		return NewContext(repo, u)
	}, ts.metrics)

	r := chi.NewRouter()
	r.Handle("/api/trpc/*", h)
	ts.handler = r
	return ts
}

func (ts *testServer) get(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandler_HealthCheck(t *testing.T) {
	ts := newTestServer(&mockProfileRepo{}, nil)

	w := ts.get("/api/trpc/health.check")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Result struct {
			Data HealthStatus `json:"data"`
		} `json:"result"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Result.Data.Status != "ok" || body.Result.Data.Database != DatabaseConnected || body.Result.Data.Auth != AuthAnonymous {
		t.Errorf("data = %+v", body.Result.Data)
	}
	if len(ts.metrics.calls) != 1 || ts.metrics.calls[0] != "health.check:OK" {
		t.Errorf("metrics = %v", ts.metrics.calls)
	}
}

func TestHandler_UnauthorizedError(t *testing.T) {
	ts := newTestServer(&mockProfileRepo{}, nil)

	w := ts.get("/api/trpc/viewer.me")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	var body errorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != -32001 || body.Error.Data.Code != CodeUnauthorized || body.Error.Data.HTTPStatus != 401 || body.Error.Data.Path != "viewer.me" {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestHandler_BatchSharesContext(t *testing.T) {
	ts := newTestServer(&mockProfileRepo{}, &model.User{ID: "u1", Email: "a@b.com"})

	w := ts.get("/api/trpc/health.check,viewer.me?batch=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ts.contexts != 1 {
		t.Errorf("contexts created = %d, want 1", ts.contexts)
	}

	var body []map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len = %d, want 2", len(body))
	}
	for i, item := range body {
		if _, ok := item["result"]; !ok {
			t.Errorf("item %d has no result: %s", i, item)
		}
	}
}

func TestHandler_BatchMixedStatus(t *testing.T) {
	ts := newTestServer(&mockProfileRepo{}, nil)

	w := ts.get("/api/trpc/health.check,viewer.me?batch=1")
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", w.Code)
	}

	var body []map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body[0]["result"]; !ok {
		t.Error("first item should succeed")
	}
	if _, ok := body[1]["error"]; !ok {
		t.Error("second item should fail")
	}
}

func TestHandler_InvalidInput(t *testing.T) {
	ts := newTestServer(&mockProfileRepo{}, nil)

	w := ts.get("/api/trpc/health.check?input=" + url.QueryEscape("{not json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var body errorEnvelope
	json.NewDecoder(w.Body).Decode(&body)
	if body.Error.Data.Code != CodeParseError || body.Error.Code != -32700 {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestHandler_UnknownProcedure(t *testing.T) {
	ts := newTestServer(&mockProfileRepo{}, nil)

	w := ts.get("/api/trpc/nope.get")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandler_PostNotSupported(t *testing.T) {
	ts := newTestServer(&mockProfileRepo{}, nil)

	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/trpc/health.check", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
	if ts.contexts != 0 {
		t.Error("context must not be built for rejected requests")
	}
}

func TestBatchStatus(t *testing.T) {
	tests := []struct {
		statuses []int
		want     int
	}{
		{nil, 200},
		{[]int{200, 200}, 200},
		{[]int{401, 401}, 401},
		{[]int{200, 401}, 207},
	}
	for _, tt := range tests {
		if got := batchStatus(tt.statuses); got != tt.want {
			t.Errorf("batchStatus(%v) = %d, want %d", tt.statuses, got, tt.want)
		}
	}
}
