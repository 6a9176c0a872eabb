package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/maltresponse/internal/model"
)

// rejectionBody はミドルウェアがハンドラー到達前にリクエストを打ち切るときのJSON本文。
// CSRF拒否・ログインスロットル・パニック復旧で共通に使う。
type rejectionBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// rejectRequest はステータスコードとmodel.APIErrorからJSONの拒否レスポンスを書き込む。
// 拒否レスポンスはキャッシュさせない。
func rejectRequest(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(rejectionBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}
