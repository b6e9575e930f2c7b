// Package draft turns editable post state into Gemini requests, decodes the
// model's recipe drafts, and merges them back into the post.
package draft

import (
	"github.com/mcdickies/savor/internal/creative"
	"github.com/mcdickies/savor/internal/richtext"
)

// Draft is the decoded result of one generation call. Nil pointers and nil
// slices mean the model did not return the field.
type Draft struct {
	Title       *string  `json:"title,omitempty"`
	Summary     *string  `json:"summary,omitempty"`
	Description *string  `json:"description,omitempty"`
	Recipe      *string  `json:"recipe,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
	// Instructions and InstructionCreativeRanges are aligned by index.
	Instructions []string `json:"instructions,omitempty"`
	Notes        []string `json:"notes,omitempty"`

	RecipeCreativeRanges      []creative.Range   `json:"recipeCreativeRanges,omitempty"`
	InstructionCreativeRanges [][]creative.Range `json:"instructionCreativeRanges,omitempty"`
}

// Image is raw image bytes as captured or picked by the user.
type Image struct {
	Name string `json:"name,omitempty"`
	Data []byte `json:"data"`
}

// EditablePost is the author's in-progress post. Photos are published with the
// post; ReferencePhotos are only ever sent to the model as context.
type EditablePost struct {
	ID              string        `json:"id,omitempty"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Recipe          richtext.Text `json:"recipe"`
	Ingredients     []string      `json:"ingredients,omitempty"`
	Notes           []string      `json:"notes,omitempty"`
	Photos          []Image       `json:"photos,omitempty"`
	ReferencePhotos []Image       `json:"referencePhotos,omitempty"`
	Transcript      string        `json:"transcript,omitempty"`
	Ideas           []string      `json:"ideas,omitempty"`
	Guidance        string        `json:"guidance,omitempty"`
	SourceURL       string        `json:"sourceUrl,omitempty"`
	SourceText      string        `json:"sourceText,omitempty"`
}

func ptr(s string) *string {
	return &s
}
