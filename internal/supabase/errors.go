package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthError はプロバイダーが返したエラー応答を表す。
type AuthError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: status %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Message)
}

// errorBody はGoTrueとPostgRESTのエラー形式をまとめて受け取る。
// codeはGoTrueでは数値、PostgRESTでは文字列のためRawMessageで受ける。
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func parseAuthError(status int, data []byte) *AuthError {
	ae := &AuthError{Status: status}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		ae.Message = http.StatusText(status)
		return ae
	}

	switch {
	case body.ErrorCode != "":
		ae.Code = body.ErrorCode
	case len(body.Code) > 0 && body.Code[0] == '"':
		var s string
		if json.Unmarshal(body.Code, &s) == nil {
			ae.Code = s
		}
	case body.Error != "":
		ae.Code = body.Error
	}

	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			ae.Message = m
			break
		}
	}
	if ae.Message == "" {
		ae.Message = http.StatusText(status)
	}
	return ae
}

// IsExpired はエラーがOTPの有効期限切れを示すかどうかを返す。
// プロバイダーのメッセージに "expired" が含まれるかで判定する。
func IsExpired(err error) bool {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Code == "otp_expired" || strings.Contains(ae.Message, "expired")
}

// isSessionRejected はプロバイダーがトークン自体を拒否したかどうかを返す。
// この場合はCookie上のセッションを破棄する。
func isSessionRejected(err error) bool {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status >= 400 && ae.Status < 500
}
