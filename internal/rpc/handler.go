package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/maltresponse/internal/metrics"
)

// codeOK は成功した呼び出しのメトリクスラベル。
const codeOK = "OK"

// ContextFactory はHTTPリクエストからRPCコンテキストを生成する。
// wはプロバイダーがセッションCookieを更新する場合に使用する。
type ContextFactory func(w http.ResponseWriter, r *http.Request) *Context

// resultEnvelope は成功レスポンスの形式。
type resultEnvelope struct {
	Result resultBody `json:"result"`
}

type resultBody struct {
	Data any `json:"data"`
}

// errorEnvelope はエラーレスポンスの形式。
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Data    errorData `json:"data"`
}

type errorData struct {
	Code       string `json:"code"`
	HTTPStatus int    `json:"httpStatus"`
	Path       string `json:"path,omitempty"`
}

// Handler はRPCのHTTPトランスポート。
// GET /api/trpc/{path} と GET /api/trpc/{p1},{p2}?batch=1 を処理する。
type Handler struct {
	router     *Router
	newContext ContextFactory
	metrics    metrics.MetricsCollector
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(router *Router, newContext ContextFactory, mc metrics.MetricsCollector) *Handler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Handler{router: router, newContext: newContext, metrics: mc}
}

// ServeHTTP はhttp.Handlerインターフェースを実装する。
// chiのワイルドカードルート（/api/trpc/*）にマウントする。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawPath := chi.URLParam(r, "*")
	batch := r.URL.Query().Get("batch") == "1"

	if r.Method != http.MethodGet {
		rpcErr := NewError(CodeMethodNotSupported, "Unsupported GET-request to mutation procedure")
		h.writeJSON(w, rpcErr.HTTPStatus(), h.errorResponse(rawPath, rpcErr))
		return
	}

	// 1. リクエストスコープのコンテキストを1回だけ生成
	rc := h.newContext(w, r)

	if !batch {
		input, rpcErr := singleInput(r)
		if rpcErr != nil {
			h.writeJSON(w, rpcErr.HTTPStatus(), h.errorResponse(rawPath, rpcErr))
			return
		}
		status, body := h.call(r, rc, rawPath, input)
		h.writeJSON(w, status, body)
		return
	}

	// 2. バッチ: 同じコンテキストで各パスを順に実行
	paths := strings.Split(rawPath, ",")
	inputs, rpcErr := batchInputs(r)
	if rpcErr != nil {
		h.writeJSON(w, rpcErr.HTTPStatus(), h.errorResponse(rawPath, rpcErr))
		return
	}

	bodies := make([]any, 0, len(paths))
	statuses := make([]int, 0, len(paths))
	for i, path := range paths {
		status, body := h.call(r, rc, path, inputs[strconv.Itoa(i)])
		statuses = append(statuses, status)
		bodies = append(bodies, body)
	}

	h.writeJSON(w, batchStatus(statuses), bodies)
}

// call は1つのプロシージャを実行し、HTTPステータスとレスポンスボディを返す。
func (h *Handler) call(r *http.Request, rc *Context, path string, input json.RawMessage) (int, any) {
	result, rpcErr := h.router.Call(r.Context(), rc, path, input)
	if rpcErr != nil {
		h.metrics.RecordRPCCall(path, rpcErr.Code)
		return rpcErr.HTTPStatus(), h.errorResponse(path, rpcErr)
	}
	h.metrics.RecordRPCCall(path, codeOK)
	return http.StatusOK, resultEnvelope{Result: resultBody{Data: result}}
}

func (h *Handler) errorResponse(path string, rpcErr *Error) errorEnvelope {
	message := rpcErr.Message
	if rpcErr.Code == CodeInternalServerError {
		message = CodeInternalServerError
	}
	return errorEnvelope{Error: errorBody{
		Message: message,
		Code:    rpcErr.JSONRPCCode(),
		Data: errorData{
			Code:       rpcErr.Code,
			HTTPStatus: rpcErr.HTTPStatus(),
			Path:       path,
		},
	}}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode rpc response", slog.String("error", err.Error()))
	}
}

// singleInput はクエリパラメータinputをJSONとして取り出す。
func singleInput(r *http.Request) (json.RawMessage, *Error) {
	raw := r.URL.Query().Get("input")
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, NewError(CodeParseError, "input is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// batchInputs はバッチのinput（インデックスをキーとするオブジェクト）を取り出す。
func batchInputs(r *http.Request) (map[string]json.RawMessage, *Error) {
	raw := r.URL.Query().Get("input")
	inputs := make(map[string]json.RawMessage)
	if raw == "" {
		return inputs, nil
	}
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, NewError(CodeParseError, "batch input must be a JSON object keyed by index")
	}
	return inputs, nil
}

// batchStatus は全呼び出しのステータスが同じならそのステータスを、異なれば207を返す。
func batchStatus(statuses []int) int {
	if len(statuses) == 0 {
		return http.StatusOK
	}
	for _, s := range statuses[1:] {
		if s != statuses[0] {
			return http.StatusMultiStatus
		}
	}
	return statuses[0]
}
