// Package speech turns voice memos into plain text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const transcribePrompt = "Transcribe this voice memo about a recipe verbatim. Return only the spoken words as plain text, without timestamps or commentary."

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("empty audio")

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// KeyFunc resolves the API key at call time so key changes apply without a restart.
type KeyFunc func(ctx context.Context) (string, error)

// GeminiTranscriber transcribes audio with a Gemini model.
type GeminiTranscriber struct {
	model string
	key   KeyFunc
	opts  []option.ClientOption
}

// NewGeminiTranscriber creates a transcriber. Extra client options are applied
// after the API key.
func NewGeminiTranscriber(model string, key KeyFunc, opts ...option.ClientOption) *GeminiTranscriber {
	return &GeminiTranscriber{model: model, key: key, opts: opts}
}

// Transcribe sends the audio to the model and returns the trimmed transcript.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	key, err := t.key(ctx)
	if err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(key)}, t.opts...)...)
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(t.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: audio}, genai.Text(transcribePrompt))
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("no transcript generated")
	}
	return text, nil
}

// firstText joins the text parts of the first candidate.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if text, ok := p.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
