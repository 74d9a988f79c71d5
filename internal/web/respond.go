package web

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes the success envelope. Extra fields merge beside "success".
func OK(w http.ResponseWriter, status int, data map[string]any) {
	payload := map[string]any{"success": true}
	for k, v := range data {
		payload[k] = v
	}
	WriteJSON(w, status, payload)
}
