package api

import (
	"encoding/json"
	"net/http"

	"matrix-zabbix-bridge/internal/usecase"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(reason string) map[string]any {
	return map[string]any{"status": usecase.StatusError, "reason": reason}
}
