package draft

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/sync/errgroup"
)

//go:embed prompt.md
var draftPrompt string

var promptTmpl = template.Must(template.New("draft").Parse(draftPrompt))

const (
	// MaxImagesPerSet caps both the published and the reference image sets.
	MaxImagesPerSet = 4

	Temperature      = 0.6
	TopP             = 0.95
	ResponseMimeType = "application/json"

	appName       = "Savor"
	jpegMimeType  = "image/jpeg"
	userRole      = "user"
	referenceNote = "The following photos are private reference material supplied only as context for this draft. Use them to understand the dish, but never describe them as photos attached to the post."
)

// Payload is the generateContent request body.
type Payload struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is either a text block or an inline image.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	ResponseMimeType string  `json:"responseMimeType"`
}

// Parts returns the parts of the single user turn.
func (p Payload) Parts() []Part {
	if len(p.Contents) == 0 {
		return nil
	}
	return p.Contents[0].Parts
}

// ImageEncoder re-encodes raw image bytes as JPEG.
type ImageEncoder interface {
	EncodeJPEG(raw []byte) ([]byte, error)
}

// RequestInput is the subset of post state that feeds a generation request.
type RequestInput struct {
	Title           string
	Description     string
	Recipe          string
	Transcript      string
	Ideas           []string
	Ingredients     []string
	Guidance        string
	SourceText      string
	Photos          [][]byte
	ReferencePhotos [][]byte
}

// InputFromPost snapshots the fields of post used to build a request.
func InputFromPost(post *EditablePost) RequestInput {
	in := RequestInput{
		Title:       post.Title,
		Description: post.Description,
		Recipe:      post.Recipe.Text,
		Transcript:  post.Transcript,
		Ideas:       append([]string(nil), post.Ideas...),
		Ingredients: append([]string(nil), post.Ingredients...),
		Guidance:    post.Guidance,
		SourceText:  post.SourceText,
	}
	for _, img := range post.Photos {
		in.Photos = append(in.Photos, img.Data)
	}
	for _, img := range post.ReferencePhotos {
		in.ReferencePhotos = append(in.ReferencePhotos, img.Data)
	}
	return in
}

type section struct {
	Label string
	Body  string
}

// BuildRequest assembles the prompt text and the encoded images into a payload.
// Images that fail to encode are skipped; only the first MaxImagesPerSet of each
// set are considered.
func BuildRequest(ctx context.Context, in RequestInput, enc ImageEncoder) (Payload, error) {
	prompt, err := buildPrompt(in)
	if err != nil {
		return Payload{}, err
	}

	published, err := encodeImages(ctx, enc, in.Photos)
	if err != nil {
		return Payload{}, err
	}
	reference, err := encodeImages(ctx, enc, in.ReferencePhotos)
	if err != nil {
		return Payload{}, err
	}

	parts := make([]Part, 0, 2+len(published)+len(reference))
	parts = append(parts, Part{Text: prompt})
	parts = append(parts, published...)
	if len(reference) > 0 {
		parts = append(parts, Part{Text: referenceNote})
		parts = append(parts, reference...)
	}

	return Payload{
		Contents: []Content{{Role: userRole, Parts: parts}},
		GenerationConfig: GenerationConfig{
			Temperature:      Temperature,
			TopP:             TopP,
			ResponseMimeType: ResponseMimeType,
		},
	}, nil
}

func buildPrompt(in RequestInput) (string, error) {
	var sections []section
	add := func(label, body string) {
		if strings.TrimSpace(body) != "" {
			sections = append(sections, section{Label: label, Body: body})
		}
	}

	add("Current title", in.Title)
	add("Post description context", in.Description)
	add("Existing recipe draft", in.Recipe)
	add("Ingredients to highlight", strings.Join(nonBlank(in.Ingredients), ", "))
	add("Voice memo transcript", in.Transcript)
	add("Saved brainstorming ideas", numbered(nonBlank(in.Ideas)))
	add("Author guidance", in.Guidance)
	add("Referenced page", in.SourceText)

	var buf bytes.Buffer
	data := struct {
		App      string
		Sections []section
	}{App: appName, Sections: sections}
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render draft prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func numbered(items []string) string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(out, " • ")
}

func nonBlank(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// encodeImages encodes up to MaxImagesPerSet images concurrently. Results are
// collected by position so the earliest images always win.
func encodeImages(ctx context.Context, enc ImageEncoder, images [][]byte) ([]Part, error) {
	if len(images) > MaxImagesPerSet {
		images = images[:MaxImagesPerSet]
	}
	if len(images) == 0 {
		return nil, nil
	}

	slots := make([]*Part, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := enc.EncodeJPEG(raw)
			if err != nil || len(data) == 0 {
				return nil
			}
			slots[i] = &Part{InlineData: &InlineData{
				MimeType: jpegMimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			}}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parts := make([]Part, 0, len(slots))
	for _, p := range slots {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	return parts, nil
}
