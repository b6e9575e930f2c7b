package draft

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdickies/savor/internal/creative"
	"github.com/mcdickies/savor/internal/richtext"
)

func existingPost() *EditablePost {
	return &EditablePost{
		ID:          "post-1",
		Title:       "Weeknight Curry",
		Description: "A quick curry",
		Recipe:      richtext.Plain("Cook everything"),
		Ingredients: []string{"chickpeas"},
		Notes:       []string{"old note"},
		Ideas:       []string{"add spinach"},
	}
}

func TestApplyFillsPresentFields(t *testing.T) {
	t.Parallel()

	post := existingPost()
	Apply(post, &Draft{
		Title:       ptr("  Chickpea Curry "),
		Summary:     ptr("Creamy and fast"),
		Description: ptr("ignored when summary is set"),
		Ingredients: []string{"chickpeas", " ", "coconut milk"},
		Notes:       []string{"Freezes well"},
	})

	require.Equal(t, "Chickpea Curry", post.Title)
	require.Equal(t, "Creamy and fast", post.Description)
	require.Equal(t, []string{"chickpeas", "coconut milk"}, post.Ingredients)
	require.Equal(t, []string{"Freezes well"}, post.Notes)
	require.Equal(t, "Cook everything", post.Recipe.Text)
	require.Equal(t, "post-1", post.ID)
	require.Equal(t, []string{"add spinach"}, post.Ideas)
}

func TestApplyFallsBackToDescription(t *testing.T) {
	t.Parallel()

	post := existingPost()
	Apply(post, &Draft{Summary: ptr("   "), Description: ptr("From the description")})
	require.Equal(t, "From the description", post.Description)
}

func TestApplyKeepsFieldsForBlankValues(t *testing.T) {
	t.Parallel()

	post := existingPost()
	Apply(post, &Draft{
		Title:       ptr(" "),
		Summary:     ptr(""),
		Ingredients: []string{"", "  "},
	})

	require.Equal(t, "Weeknight Curry", post.Title)
	require.Equal(t, "A quick curry", post.Description)
	require.Equal(t, []string{"chickpeas"}, post.Ingredients)
	require.Equal(t, "Cook everything", post.Recipe.Text)
}

func TestApplyClearsNotes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		notes []string
	}{
		{name: "Absent"},
		{name: "Empty", notes: []string{}},
		{name: "OnlyBlank", notes: []string{" ", "\n"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			post := existingPost()
			Apply(post, &Draft{Notes: tc.notes})
			require.Empty(t, post.Notes)
		})
	}
}

func TestApplyNumberedInstructions(t *testing.T) {
	t.Parallel()

	post := existingPost()
	Apply(post, &Draft{
		Recipe:       ptr("flat recipe is ignored"),
		Instructions: []string{"Chop finely", "Simmer 20 minutes"},
		InstructionCreativeRanges: [][]creative.Range{
			{{Location: 5, Length: 6}},
			{{Location: 7, Length: 10}},
		},
	})

	require.Equal(t, "1. Chop finely\n2. Simmer 20 minutes", post.Recipe.Text)
	require.Equal(t, []creative.Range{
		{Location: 8, Length: 6},
		{Location: 25, Length: 10},
	}, post.Recipe.Highlights)

	got, ok := creative.Slice(post.Recipe.Text, post.Recipe.Highlights[0])
	require.True(t, ok)
	require.Equal(t, "finely", got)
	got, ok = creative.Slice(post.Recipe.Text, post.Recipe.Highlights[1])
	require.True(t, ok)
	require.Equal(t, "20 minutes", got)
}

func TestApplyInstructionsWithoutRanges(t *testing.T) {
	t.Parallel()

	post := existingPost()
	Apply(post, &Draft{
		Instructions:              []string{"Boil", "Salt", "Serve"},
		InstructionCreativeRanges: [][]creative.Range{nil, {{Location: 0, Length: 4}}},
	})

	require.Equal(t, "1. Boil\n2. Salt\n3. Serve", post.Recipe.Text)
	require.Equal(t, []creative.Range{{Location: 11, Length: 4}}, post.Recipe.Highlights)
}

func TestApplyFlatRecipe(t *testing.T) {
	t.Parallel()

	post := existingPost()
	Apply(post, &Draft{
		Recipe: ptr("Boil for 10 minutes then serve"),
		RecipeCreativeRanges: []creative.Range{
			{Location: 5, Length: 14},
			{Location: 28, Length: 10},
		},
	})

	require.Equal(t, "Boil for 10 minutes then serve", post.Recipe.Text)
	// The second range runs past the end of the text and is dropped.
	require.Equal(t, []creative.Range{{Location: 5, Length: 14}}, post.Recipe.Highlights)
}

func TestApplyKeepsRecipeForBlankValue(t *testing.T) {
	t.Parallel()

	for _, recipe := range []string{"", "   ", "\n"} {
		post := existingPost()
		Apply(post, &Draft{Recipe: ptr(recipe), RecipeCreativeRanges: []creative.Range{{Location: 0, Length: 1}}})
		require.Equal(t, "Cook everything", post.Recipe.Text, "recipe %q", recipe)
		require.Empty(t, post.Recipe.Highlights)
	}
}

func TestApplyNilInputs(t *testing.T) {
	t.Parallel()

	post := existingPost()
	Apply(post, nil)
	require.Equal(t, existingPost(), post)

	require.NotPanics(t, func() { Apply(nil, &Draft{}) })
}
