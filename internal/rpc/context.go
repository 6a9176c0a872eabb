// Package rpc はリクエストスコープのコンテキストを持つ型付きRPC層を提供する。
package rpc

import (
	"context"

	"github.com/hitoshi/maltresponse/internal/model"
	"github.com/hitoshi/maltresponse/internal/repository"
)

// Context はRPCプロシージャに渡されるリクエストスコープのコンテキスト。
// HTTPリクエストごとに1回だけ生成し、バッチ内の全呼び出しで共有する。
type Context struct {
	Profiles repository.ProfileRepository
	User     *model.User
}

// NewContext はContextを生成する。userがnilの場合は匿名リクエストとなる。
func NewContext(profiles repository.ProfileRepository, user *model.User) *Context {
	return &Context{Profiles: profiles, User: user}
}

// Authenticated はユーザーが存在するかどうかを返す。
func (c *Context) Authenticated() bool {
	return c.User != nil && c.User.ID != ""
}

// GetUser はコンテキストのユーザーを返す。user.UserGetterを満たす。
func (c *Context) GetUser(_ context.Context) (*model.User, error) {
	if !c.Authenticated() {
		return nil, nil
	}
	return c.User, nil
}
