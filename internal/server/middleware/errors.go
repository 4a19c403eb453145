package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes carried by the JSON envelope. Clients switch on these,
// not on the human-readable message.
const (
	CodeInvalidQuery     = "INVALID_QUERY"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// ErrorResponse is the envelope for every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine code, the human message, and the id
// of the request that failed so it can be matched against the logs.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError writes the error envelope with the given status. The
// request id comes out of the context so callers never thread it by
// hand.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: GetRequestID(r.Context()),
		Details:   details,
	}}
	_ = json.NewEncoder(w).Encode(resp)
}

// NotFound is the router fallback for unknown paths.
func NotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, CodeNotFound,
			fmt.Sprintf("no route for %s", r.URL.Path), nil)
	}
}

// MethodNotAllowed is the router fallback for known paths hit with the
// wrong verb.
func MethodNotAllowed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
			fmt.Sprintf("%s not allowed on %s", r.Method, r.URL.Path), nil)
	}
}
