package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// QueryFunc はクエリプロシージャの本体。inputは未指定の場合nilになる。
type QueryFunc func(ctx context.Context, rc *Context, input json.RawMessage) (any, error)

// Procedure はルーターに登録するプロシージャ。
// Authedがtrueの場合、ユーザーが存在しなければ本体を実行せずにUNAUTHORIZEDを返す。
type Procedure struct {
	Authed bool
	Query  QueryFunc
}

// Router はドット区切りのパス（例: "health.check"）でプロシージャを管理する。
type Router struct {
	mu         sync.RWMutex
	procedures map[string]Procedure
}

// NewRouter は空のRouterを生成する。
func NewRouter() *Router {
	return &Router{procedures: make(map[string]Procedure)}
}

// Register はプロシージャを登録する。同じパスの二重登録はpanicする。
func (r *Router) Register(path string, p Procedure) {
	if p.Query == nil {
		panic(fmt.Sprintf("rpc: procedure %q has no query", path))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.procedures[path]; exists {
		panic(fmt.Sprintf("rpc: procedure %q already registered", path))
	}
	r.procedures[path] = p
	slog.Debug("registered rpc procedure", slog.String("path", path), slog.Bool("authed", p.Authed))
}

// Paths は登録済みのパスをソートして返す。
func (r *Router) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.procedures))
	for path := range r.procedures {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Call はパスのプロシージャを実行する。
// 返すエラーは常に*Error。
func (r *Router) Call(ctx context.Context, rc *Context, path string, input json.RawMessage) (any, *Error) {
	r.mu.RLock()
	p, ok := r.procedures[path]
	r.mu.RUnlock()

	if !ok {
		return nil, NewError(CodeNotFound, fmt.Sprintf("No procedure found on path %q", path))
	}

	if p.Authed && !rc.Authenticated() {
		return nil, NewError(CodeUnauthorized, "")
	}

	result, err := p.Query(ctx, rc, input)
	if err != nil {
		rpcErr := asError(err)
		if rpcErr.Code == CodeInternalServerError {
			slog.Error("rpc procedure failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return nil, rpcErr
	}
	return result, nil
}
