package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Error is the body of every non-2xx response. Code is the snake_case
// HTTP status text, e.g. "not_found" or "service_unavailable".
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    errorCode(status),
		Message: message,
	})
}

func errorCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		text = http.StatusText(http.StatusInternalServerError)
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
