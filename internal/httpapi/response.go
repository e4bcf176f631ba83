package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/options"
	"transformd/internal/rendition"
	"transformd/internal/transform"
)

type ErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	var env ErrorEnvelope
	env.Error.Code = code
	env.Error.Message = msg
	env.Error.Details = details
	WriteJSON(w, status, env)
}

// writeDomainErr maps service errors onto statuses and codes.
func writeDomainErr(w http.ResponseWriter, err error, details map[string]any) {
	switch {
	case errors.Is(err, rendition.ErrUnknownDefinition):
		WriteErr(w, http.StatusNotFound, "UNKNOWN_RENDITION", err.Error(), details)
	case errors.Is(err, content.ErrNodeNotFound):
		WriteErr(w, http.StatusNotFound, "NODE_NOT_FOUND", err.Error(), details)
	case errors.Is(err, content.ErrNoContent):
		WriteErr(w, http.StatusNotFound, "NO_CONTENT", err.Error(), details)
	case errors.Is(err, transform.ErrUnsupportedTransform):
		WriteErr(w, http.StatusUnprocessableEntity, "UNSUPPORTED_TRANSFORM", err.Error(), details)
	case errors.Is(err, options.ErrUnmappableOptions), errors.Is(err, options.ErrInvalidOptionValue):
		WriteErr(w, http.StatusUnprocessableEntity, "INVALID_OPTIONS", err.Error(), details)
	case errors.Is(err, executor.ErrShutdown):
		WriteErr(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error(), details)
	default:
		WriteErr(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), details)
	}
}
