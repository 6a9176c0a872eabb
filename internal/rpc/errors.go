package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーコード
const (
	CodeParseError          = "PARSE_ERROR"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotSupported  = "METHOD_NOT_SUPPORTED"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

// errorCodeTable はエラーコードに対応するJSON-RPCコードとHTTPステータス。
var errorCodeTable = map[string]struct {
	jsonRPC    int
	httpStatus int
}{
	CodeParseError:          {-32700, http.StatusBadRequest},
	CodeBadRequest:          {-32600, http.StatusBadRequest},
	CodeUnauthorized:        {-32001, http.StatusUnauthorized},
	CodeNotFound:            {-32004, http.StatusNotFound},
	CodeMethodNotSupported:  {-32005, http.StatusMethodNotAllowed},
	CodeInternalServerError: {-32603, http.StatusInternalServerError},
}

// Error はプロシージャが返す型付きエラー。
type Error struct {
	Code    string
	Message string
	Cause   error
}

// NewError はErrorを生成する。messageが空の場合はコードをメッセージとする。
func NewError(code, message string) *Error {
	if message == "" {
		message = code
	}
	return &Error{Code: code, Message: message}
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Cause
}

// JSONRPCCode はエラーコードに対応するJSON-RPCの数値コードを返す。
func (e *Error) JSONRPCCode() int {
	if c, ok := errorCodeTable[e.Code]; ok {
		return c.jsonRPC
	}
	return errorCodeTable[CodeInternalServerError].jsonRPC
}

// HTTPStatus はエラーコードに対応するHTTPステータスを返す。
func (e *Error) HTTPStatus() int {
	if c, ok := errorCodeTable[e.Code]; ok {
		return c.httpStatus
	}
	return http.StatusInternalServerError
}

// asError は任意のエラーをErrorに変換する。型付きでないエラーは内部エラーとして扱い、
// 詳細はクライアントに返さない。
func asError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &Error{Code: CodeInternalServerError, Message: CodeInternalServerError, Cause: err}
}
