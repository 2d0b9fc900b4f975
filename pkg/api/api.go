// Package api provides standardized helpers for JSON HTTP responses.
package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error,omitempty"`
	// Code is a stable machine-readable identifier, when known.
	Code string `json:"code,omitempty"`
	// Fields maps input fields to validation messages.
	Fields map[string]string `json:"fields,omitempty"`
	// Redirect tells the front end where to go next.
	Redirect  string `json:"redirect,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Success sends a JSON response with optional data.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error sends a JSON error response with only a message.
func Error(w http.ResponseWriter, statusCode int, message string) {
	Fail(w, statusCode, ErrorResponse{Error: message})
}

// Fail sends a fully populated error body.
func Fail(w http.ResponseWriter, statusCode int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
