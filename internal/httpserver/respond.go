package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wisbric/hrctl/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, err string, message string) {
	Respond(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// RespondAppErr writes the taxonomy-driven error envelope for an *apperr.Error.
// Any other error is logged and answered as an internal failure.
func RespondAppErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		logger.Error("unclassified error", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "an unexpected error occurred")
		return
	}

	if ae.Category == apperr.CategoryInternal {
		logger.Error("internal invariant violation", "code", ae.Code, "error", ae.Err)
	}

	RespondError(w, ae.Status(), ae.Code, ae.Message)
}
