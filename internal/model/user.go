// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証プロバイダーが管理するユーザーを表す。
// 存在すること自体が「認証済み」を意味する。
type User struct {
	ID    string
	Email string
}

// Profile はユーザーと1対1で紐付くプロフィール情報を表す。
// このアプリケーションからは読み取りのみ行う。
type Profile struct {
	ID          string
	DisplayName *string // 未設定の場合はnil
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session は認証プロバイダーが発行したトークンペアを表す。
// ライフサイクルはプロバイダーが所有し、Cookieで運ばれる。
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         *User
}

// Expired はセッションが期限切れ（または猶予時間内に期限切れ）かどうかを返す。
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// Claims はアクセストークンから得られた検証済みの認証情報を表す。
// Subjectが空でない場合に「ユーザーあり」とみなす。
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// UserData はUIシェルに表示するユーザー情報。
type UserData struct {
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName"`
}
