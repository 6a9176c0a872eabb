package handler

import "net/http"

// Health はプロセスの生存確認を返す。依存サービスの状態はhealth.checkで確認する。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
