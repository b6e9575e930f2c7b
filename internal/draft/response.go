package draft

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mcdickies/savor/internal/creative"
	"github.com/mcdickies/savor/internal/shared"
)

var (
	// ErrInvalidResponse covers transport failures and non-2xx replies without an error body.
	ErrInvalidResponse = errors.New("invalid response from generation service")
	// ErrEmptyResponse means no usable text came back.
	ErrEmptyResponse = errors.New("generation service returned no text")
	// ErrDecodingFailed means the returned text was not a valid draft JSON object.
	ErrDecodingFailed = errors.New("failed to decode draft JSON")
)

// APIError is an error reported by the service in its error envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type responseEnvelope struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// rawDraft mirrors the JSON schema requested in the prompt.
type rawDraft struct {
	Title        *string  `json:"title"`
	Summary      *string  `json:"summary"`
	Description  *string  `json:"description"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	Notes        []string `json:"notes"`
	Recipe       *string  `json:"recipe"`
}

// DecodeResponse validates an HTTP reply and decodes the draft it carries. The
// returned usage is zero when the service did not report token counts.
func DecodeResponse(status int, body []byte) (*Draft, shared.TokenUsage, error) {
	if status < 200 || status > 299 {
		var env errorEnvelope
		if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
			if msg := strings.TrimSpace(env.Error.Message); msg != "" {
				return nil, shared.TokenUsage{}, &APIError{Status: status, Message: msg}
			}
		}
		return nil, shared.TokenUsage{}, ErrInvalidResponse
	}

	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, shared.TokenUsage{}, ErrInvalidResponse
	}
	usage := env.usage()

	text := env.payloadText()
	if text == "" {
		return nil, usage, ErrEmptyResponse
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &raw); err != nil {
		return nil, usage, ErrDecodingFailed
	}
	return raw.finalize(), usage, nil
}

// payloadText joins the text parts of the first candidate.
func (e responseEnvelope) payloadText() string {
	if len(e.Candidates) == 0 {
		return ""
	}
	var texts []string
	for _, p := range e.Candidates[0].Content.Parts {
		if p.Text != nil {
			texts = append(texts, *p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

func (e responseEnvelope) usage() shared.TokenUsage {
	u := shared.TokenUsage{Model: e.ModelVersion}
	if e.UsageMetadata != nil {
		u.PromptTokens = e.UsageMetadata.PromptTokenCount
		u.CompletionTokens = e.UsageMetadata.CandidatesTokenCount
		u.TotalTokens = e.UsageMetadata.TotalTokenCount
	}
	return u
}

func (r rawDraft) finalize() *Draft {
	d := &Draft{
		Title:       stripPtr(r.Title),
		Summary:     stripPtr(r.Summary),
		Description: stripPtr(r.Description),
		Ingredients: stripAll(r.Ingredients),
		Notes:       stripAll(r.Notes),
	}

	if r.Recipe != nil {
		text, ranges := creative.Clean(*r.Recipe)
		d.Recipe = &text
		d.RecipeCreativeRanges = ranges
	}

	if r.Instructions != nil {
		d.Instructions = make([]string, 0, len(r.Instructions))
		d.InstructionCreativeRanges = make([][]creative.Range, 0, len(r.Instructions))
		for _, step := range r.Instructions {
			text, ranges := creative.Clean(step)
			if text == "" {
				continue
			}
			d.Instructions = append(d.Instructions, text)
			d.InstructionCreativeRanges = append(d.InstructionCreativeRanges, ranges)
		}
	}
	return d
}

func stripPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return ptr(creative.Strip(*s))
}

func stripAll(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = creative.Strip(item)
	}
	return out
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
