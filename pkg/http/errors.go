package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error       string     `json:"error"`             // Machine-readable error code
	Message     string     `json:"message"`           // Human-readable message
	Details     string     `json:"details,omitempty"` // Optional additional context
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteTokenExpired tells the client to attempt a refresh rather than a new login
func WriteTokenExpired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "token_expired", message)
}

func WriteInvalidToken(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "invalid_token", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

// WriteLocked reports a temporarily locked account together with its unlock time
func WriteLocked(w http.ResponseWriter, message string, until time.Time) {
	until = until.UTC()
	WriteJSON(w, http.StatusLocked, ErrorResponse{
		Error:       "account_locked",
		Message:     message,
		LockedUntil: &until,
	})
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
