package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tjfontaine/hipnotes/internal/pipeline"
)

// internalMessage replaces the text of internal failures in responses.
const internalMessage = "An unexpected error occurred"

type errorEnvelope struct {
	StatusCode int              `json:"statusCode"`
	Error      string           `json:"error"`
	Message    string           `json:"message"`
	Details    []pipeline.Issue `json:"details,omitempty"`
}

// writeError renders err as an envelope and records it in the request log.
// Errors that are not *pipeline.Error are internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) int {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		perr = pipeline.ErrInternal(internalMessage).WithCause(err)
	}

	ctx := r.Context()
	AddLogField(ctx, "error_kind", string(perr.Kind))
	AddLogField(ctx, "phase", string(perr.Phase))
	AddError(ctx, err)

	message := perr.Message
	if perr.Kind == pipeline.KindInternal {
		message = internalMessage
	}
	status := perr.HTTPStatusCode()
	writeEnvelope(w, status, message, perr.Details)
	return status
}

func writeEnvelope(w http.ResponseWriter, status int, message string, details []pipeline.Issue) {
	writeJSON(w, status, errorEnvelope{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
		Details:    details,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope{
			StatusCode: status,
			Error:      http.StatusText(status),
			Message:    internalMessage,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
