package llm

import (
	"errors"

	"github.com/mcdickies/savor/internal/draft"
)

var (
	// ErrMissingAPIKey means neither the keystore nor the environment holds a key.
	ErrMissingAPIKey = errors.New("missing Gemini API key")
	// ErrInvalidURL means the generation endpoint could not be built.
	ErrInvalidURL = errors.New("invalid generation endpoint")
	// ErrRequestInFlight rejects a call made while another is still running.
	ErrRequestInFlight = errors.New("a draft request is already in flight")

	ErrInvalidResponse = draft.ErrInvalidResponse
	ErrEmptyResponse   = draft.ErrEmptyResponse
	ErrDecodingFailed  = draft.ErrDecodingFailed
)

// APIError is a service-reported error; its message is shown verbatim.
type APIError = draft.APIError

// UserMessage maps err to the sentence shown to the author.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrMissingAPIKey):
		return "Add a Gemini API key in Settings to draft with AI."
	case errors.Is(err, ErrRequestInFlight):
		return "A draft is already being generated. Please wait for it to finish."
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidResponse):
		return "Unable to reach the Gemini service right now. Please try again."
	case errors.Is(err, ErrEmptyResponse):
		return "Gemini returned an empty response. Try adjusting your prompt and sending again."
	case errors.Is(err, ErrDecodingFailed):
		return "Gemini sent back an unexpected format. Try regenerating your draft."
	default:
		return "Something went wrong while drafting. Please try again."
	}
}

// errorKind is the short label stored with request metrics.
func errorKind(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return "api"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_api_key"
	case errors.Is(err, ErrRequestInFlight):
		return "request_in_flight"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrDecodingFailed):
		return "decoding_failed"
	default:
		return "internal"
	}
}

// IsDraftError reports whether err belongs to the draft error taxonomy, so that
// UserMessage has a specific sentence for it.
func IsDraftError(err error) bool {
	kind := errorKind(err)
	return kind != "" && kind != "internal"
}
