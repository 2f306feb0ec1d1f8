package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
// TraceID is only set on 5xx responses, where the real error stays in the logs.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON response: %v", err)
		}
	}
}

// RespondError writes a standard error response with the caller-visible message.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondInternalError logs the full error under a fresh trace id and returns
// an opaque envelope. Internal detail never crosses the boundary on 5xx.
func RespondInternalError(w http.ResponseWriter, component string, err error) {
	traceID := uuid.New().String()
	log.Printf("%s: internal error [trace_id=%s]: %v", component, traceID, err)
	RespondJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "Internal server error",
		TraceID: traceID,
	})
}

// RespondNoContent writes a 204 No Content response with no body.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
