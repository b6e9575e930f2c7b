package draft

import (
	"fmt"
	"strings"

	"github.com/mcdickies/savor/internal/creative"
	"github.com/mcdickies/savor/internal/richtext"
)

// mergeRule copies one field of a decoded draft onto the next post state.
type mergeRule struct {
	field string
	apply func(next *EditablePost, d *Draft)
}

// mergeRules fill a field only when the draft has something for it. Notes is the
// one field a draft may clear.
var mergeRules = []mergeRule{
	{field: "title", apply: func(next *EditablePost, d *Draft) {
		next.Title = keepText(next.Title, d.Title)
	}},
	{field: "description", apply: func(next *EditablePost, d *Draft) {
		next.Description = keepText(next.Description, firstNonBlank(d.Summary, d.Description))
	}},
	{field: "ingredients", apply: func(next *EditablePost, d *Draft) {
		next.Ingredients = keepList(next.Ingredients, d.Ingredients)
	}},
	{field: "recipe", apply: func(next *EditablePost, d *Draft) {
		next.Recipe = keepRecipe(next.Recipe, d)
	}},
	{field: "notes", apply: func(next *EditablePost, d *Draft) {
		next.Notes = nonBlank(d.Notes)
	}},
}

// Apply merges d into post. The post is replaced in a single assignment once all
// rules have run.
func Apply(post *EditablePost, d *Draft) {
	if post == nil || d == nil {
		return
	}
	next := *post
	for _, rule := range mergeRules {
		rule.apply(&next, d)
	}
	*post = next
}

func keepText(current string, incoming *string) string {
	if incoming == nil {
		return current
	}
	if s := strings.TrimSpace(*incoming); s != "" {
		return s
	}
	return current
}

func firstNonBlank(values ...*string) *string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return v
		}
	}
	return nil
}

func keepList(current, incoming []string) []string {
	if filtered := nonBlank(incoming); len(filtered) > 0 {
		return filtered
	}
	return current
}

func keepRecipe(current richtext.Text, d *Draft) richtext.Text {
	if len(d.Instructions) > 0 {
		return numberedSteps(d.Instructions, d.InstructionCreativeRanges)
	}
	if d.Recipe != nil && strings.TrimSpace(*d.Recipe) != "" {
		return richtext.New(*d.Recipe, d.RecipeCreativeRanges)
	}
	return current
}

// numberedSteps renders "1. step\n2. step" and shifts each step's ranges past its
// ordinal prefix.
func numberedSteps(steps []string, ranges [][]creative.Range) richtext.Text {
	var (
		b       strings.Builder
		shifted []creative.Range
		offset  int
	)
	for i, step := range steps {
		if i > 0 {
			b.WriteString("\n")
			offset++
		}
		prefix := fmt.Sprintf("%d. ", i+1)
		b.WriteString(prefix)
		offset += creative.Len(prefix)

		if i < len(ranges) {
			for _, r := range ranges[i] {
				shifted = append(shifted, creative.Range{Location: r.Location + offset, Length: r.Length})
			}
		}

		b.WriteString(step)
		offset += creative.Len(step)
	}
	return richtext.New(b.String(), shifted)
}
