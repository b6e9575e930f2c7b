package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/mcdickies/savor/internal/draft"
)

// formatPostHTML renders the post for Telegram's HTML parse mode. Creative
// highlights are shown in italics.
func formatPostHTML(post *draft.EditablePost) string {
	var sb strings.Builder

	title := strings.TrimSpace(post.Title)
	if title == "" {
		title = "Untitled recipe"
	}
	fmt.Fprintf(&sb, "🍲 <b>%s</b>\n", html.EscapeString(title))

	if d := strings.TrimSpace(post.Description); d != "" {
		fmt.Fprintf(&sb, "\n%s\n", html.EscapeString(d))
	}

	if len(post.Ingredients) > 0 {
		sb.WriteString("\n🛒 <b>Ingredients</b>\n")
		for _, ing := range post.Ingredients {
			fmt.Fprintf(&sb, "• %s\n", html.EscapeString(ing))
		}
	}

	if !post.Recipe.IsEmpty() {
		sb.WriteString("\n📝 <b>Recipe</b>\n")
		sb.WriteString(post.Recipe.RenderHTML())
		sb.WriteString("\n")
	}

	if len(post.Notes) > 0 {
		sb.WriteString("\n📌 <b>Notes</b>\n")
		for _, n := range post.Notes {
			fmt.Fprintf(&sb, "• %s\n", html.EscapeString(n))
		}
	}

	fmt.Fprintf(&sb, "\n<i>%d photos, %d reference, %d ideas</i>", len(post.Photos), len(post.ReferencePhotos), len(post.Ideas))
	return sb.String()
}
