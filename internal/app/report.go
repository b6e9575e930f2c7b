package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/mcdickies/savor/internal/draft"
)

var heading = color.New(color.Bold)

// PrintMetrics prints daily draft usage for the last days.
func (a *App) PrintMetrics(days int) error {
	usage, err := a.metricsStore.GetDailyUsage(days)
	if err != nil {
		return err
	}
	heading.Fprintf(a.out, "Draft usage (last %d days)\n", days)
	if len(usage) == 0 {
		fmt.Fprintln(a.out, "No data yet")
	}
	for _, d := range usage {
		fmt.Fprintf(a.out, "%s  %6d prompt  %6d completion  %3d requests  %3d failed\n",
			d.Date, d.TotalPrompt, d.TotalCompletion, d.TotalExecution, d.Failures)
	}

	h := a.Health()
	heading.Fprintln(a.out, "\nSystem")
	fmt.Fprintf(a.out, "RAM %dMB alloc / %dMB sys, %d goroutines\n", h.AllocMB, h.SysMB, h.Goroutines)
	fmt.Fprintf(a.out, "Database %s, %d posts using %s\n", h.DatabaseSize, h.PostCount, h.PostsSize)
	return nil
}

// CleanupMetrics removes metric records older than days.
func (a *App) CleanupMetrics(days int) error {
	affected, err := a.metricsStore.Cleanup(days)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Successfully removed %d old metric records.\n", affected)
	return nil
}

// printPost renders a post for the terminal with creative spans highlighted.
func printPost(w io.Writer, post *draft.EditablePost) {
	title := post.Title
	if strings.TrimSpace(title) == "" {
		title = "(untitled)"
	}
	heading.Fprintln(w, title)
	if post.Description != "" {
		fmt.Fprintln(w, post.Description)
	}

	if len(post.Ingredients) > 0 {
		heading.Fprintln(w, "\nIngredients")
		for _, ing := range post.Ingredients {
			fmt.Fprintf(w, "  • %s\n", ing)
		}
	}

	if !post.Recipe.IsEmpty() {
		heading.Fprintln(w, "\nRecipe")
		fmt.Fprintln(w, post.Recipe.RenderANSI())
	}

	if len(post.Notes) > 0 {
		heading.Fprintln(w, "\nNotes")
		for _, n := range post.Notes {
			fmt.Fprintf(w, "  • %s\n", n)
		}
	}

	fmt.Fprintf(w, "\n%d photos, %d reference photos, %d ideas\n", len(post.Photos), len(post.ReferencePhotos), len(post.Ideas))
}
