package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError writes the same error envelope the handlers use.
func writeError(w http.ResponseWriter, status int, title, message string) {
	body, _ := json.Marshal(map[string]map[string]string{
		"error": {"title": title, "message": message},
	})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
