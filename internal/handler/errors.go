package handler

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the JSON error body shared by all REST endpoints.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON serializes v as the response body with the given status.
// Encoding failures at this point are unrecoverable (headers are already
// written), so they are silently dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body. The caller supplies the
// human-readable message because the handler is the layer that knows what
// was being looked up.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
