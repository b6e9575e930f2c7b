package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcdickies/savor/internal/llm"
	"github.com/mcdickies/savor/internal/storage"
)

// apiError is the JSON error envelope returned by every handler.
type apiError struct {
	Code    string
	Message string
	Status  int
}

// fromDraftError maps a generation failure to its HTTP status and code.
func fromDraftError(err error) apiError {
	e := apiError{Message: llm.UserMessage(err), Status: http.StatusBadGateway, Code: "upstream_error"}
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, llm.ErrRequestInFlight):
		e.Status, e.Code = http.StatusConflict, "request_in_flight"
	case errors.Is(err, llm.ErrMissingAPIKey):
		e.Status, e.Code = http.StatusServiceUnavailable, "missing_api_key"
	case errors.As(err, &apiErr):
		e.Code = "gemini_error"
	case errors.Is(err, llm.ErrEmptyResponse):
		e.Code = "empty_response"
	case errors.Is(err, llm.ErrDecodingFailed):
		e.Code = "decoding_failed"
	}
	return e
}

func fromStorageError(err error) apiError {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apiError{Code: "not_found", Message: "Post not found.", Status: http.StatusNotFound}
	case errors.Is(err, storage.ErrInvalidID):
		return apiError{Code: "invalid_id", Message: "Invalid post id.", Status: http.StatusBadRequest}
	default:
		return apiError{Code: "storage_error", Message: "Unable to access the post.", Status: http.StatusInternalServerError}
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, e apiError) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := middleware.GetReqID(ctx); id != "" {
		payload["request_id"] = id
	}
	writeJSON(w, e.Status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
