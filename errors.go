package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/example/foodtracker/internal/auth"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func writeMessage(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
		"message": message,
	})
}

// writeAuthError maps an authentication failure onto its HTTP form. Only
// the two surfaced kinds reach the client; causes stay in the logs.
func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(auth.Surface(err), auth.ErrServiceUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Authentication service unavailable")
		return
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials")
}

func writeInternal(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

const maxJSONBody = 1 << 20

// decodeJSON reads a JSON request body. An empty body decodes to the zero
// value when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
	return false
}
