package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/mcdickies/savor/internal/config"
	"github.com/mcdickies/savor/internal/llm"
	"github.com/mcdickies/savor/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func geminiServer(t *testing.T, gotKey *atomic.Value) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.URL.Query().Get("key"))
		text := `{"title":"Soup","summary":"Warm and simple","recipe":"Boil <creative>for 10 minutes</creative> then serve","notes":[]}`
		body, _ := json.Marshal(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{
				"parts": []any{map[string]string{"text": text}},
			}}},
			"usageMetadata": map[string]int{"promptTokenCount": 50, "candidatesTokenCount": 10, "totalTokenCount": 60},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestApp(t *testing.T, baseURL, secret string) (*App, *bytes.Buffer) {
	t.Helper()
	return newTestAppWith(t, baseURL, secret, nil)
}

func newTestAppWith(t *testing.T, baseURL, secret string, tweak func(*config.Config)) (*App, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	dir := t.TempDir()
	cfg := &config.Config{
		GeminiModel:     "gemini-test",
		GeminiBaseURL:   baseURL,
		DatabasePath:    filepath.Join(dir, "savor.db"),
		PostStoragePath: filepath.Join(dir, "posts"),
		KeystoreSecret:  secret,
	}
	if tweak != nil {
		tweak(cfg)
	}

	var out bytes.Buffer
	a, err := New(cfg, nil, WithOutput(&out))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, &out
}

func TestDraftStoredPost(t *testing.T) {
	var gotKey atomic.Value
	server := geminiServer(t, &gotKey)
	a, out := newTestApp(t, server.URL, testSecret)
	ctx := context.Background()

	post, err := a.NewPost("")
	require.NoError(t, err)
	require.NoError(t, a.AddIdea(post.ID, "  use leftover stock "))
	require.NoError(t, a.SetField(post.ID, "guidance", "keep it short"))
	require.NoError(t, a.SetAPIKey(ctx, " stored-key "))

	out.Reset()
	require.NoError(t, a.Draft(ctx, post.ID))
	require.Equal(t, "stored-key", gotKey.Load())

	stored, err := a.Posts().Load(post.ID)
	require.NoError(t, err)
	require.Equal(t, "Soup", stored.Title)
	require.Equal(t, "Warm and simple", stored.Description)
	require.Equal(t, "Boil for 10 minutes then serve", stored.Recipe.Text)
	require.Equal(t, []string{"use leftover stock"}, stored.Ideas)
	require.Equal(t, "keep it short", stored.Guidance)

	printed := out.String()
	require.Contains(t, printed, "Soup")
	require.Contains(t, printed, "Boil for 10 minutes then serve")
	require.Contains(t, printed, "0 photos, 0 reference photos, 1 ideas")

	usage, err := a.Metrics().GetDailyUsage(1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	require.Equal(t, 50, usage[0].TotalPrompt)
	require.Equal(t, 1, usage[0].TotalExecution)
	require.Zero(t, usage[0].Failures)
}

func TestDraftWithoutKeyLeavesPost(t *testing.T) {
	var gotKey atomic.Value
	server := geminiServer(t, &gotKey)
	a, _ := newTestApp(t, server.URL, "")

	post, err := a.NewPost("Stew")
	require.NoError(t, err)

	err = a.Draft(context.Background(), post.ID)
	require.Error(t, err)
	require.Nil(t, gotKey.Load())

	stored, err := a.Posts().Load(post.ID)
	require.NoError(t, err)
	require.Equal(t, "Stew", stored.Title)
	require.True(t, stored.Recipe.IsEmpty())
}

func TestAPIKeyCommands(t *testing.T) {
	a, out := newTestApp(t, "http://127.0.0.1:1", testSecret)
	ctx := context.Background()

	require.NoError(t, a.ShowAPIKey(ctx))
	require.Contains(t, out.String(), "Add a Gemini API key")

	require.Error(t, a.SetAPIKey(ctx, "   "))
	require.NoError(t, a.SetAPIKey(ctx, "AIzaSyExampleKey1234"))

	out.Reset()
	require.NoError(t, a.ShowAPIKey(ctx))
	require.Equal(t, "AIza************1234 (from keystore)\n", out.String())

	require.NoError(t, a.DeleteAPIKey(ctx))
	key, err := a.Drafts().ResolveAPIKey(ctx)
	require.Error(t, err)
	require.Empty(t, key)
}

func TestShowAPIKeyReportsResolvedSource(t *testing.T) {
	a, out := newTestAppWith(t, "http://127.0.0.1:1", testSecret, func(cfg *config.Config) {
		cfg.GeminiAPIKey = "env-key-00001111"
	})
	ctx := context.Background()

	require.NoError(t, a.keys.Set(ctx, llm.APIKeyName, "   "))
	require.NoError(t, a.ShowAPIKey(ctx))
	require.Equal(t, "env-********1111 (from environment)\n", out.String())

	out.Reset()
	require.NoError(t, a.SetAPIKey(ctx, "stored-key-2222"))
	out.Reset()
	require.NoError(t, a.ShowAPIKey(ctx))
	require.Equal(t, "stor*******2222 (from keystore)\n", out.String())
}

func TestMaskKey(t *testing.T) {
	require.Equal(t, "****", maskKey("abcd"))
	require.Equal(t, "abcd*efgh", maskKey("abcdXefgh"))
}

func TestPostEditing(t *testing.T) {
	a, out := newTestApp(t, "http://127.0.0.1:1", "")

	post, err := a.NewPost("Focaccia")
	require.NoError(t, err)

	photo := filepath.Join(t.TempDir(), "crumb.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg"), 0o644))
	require.NoError(t, a.AddPhoto(post.ID, photo, false))
	require.NoError(t, a.AddPhoto(post.ID, photo, true))
	require.Contains(t, out.String(), "1 photos and 1 reference photos")

	require.Error(t, a.AddPhoto(post.ID, filepath.Join(t.TempDir(), "missing.jpg"), false))
	require.Error(t, a.AddIdea(post.ID, " "))
	require.Error(t, a.SetField(post.ID, "ingredients", "flour"))
	require.ErrorIs(t, a.SetField("no-such-post", "title", "x"), storage.ErrNotFound)

	stored, err := a.Posts().Load(post.ID)
	require.NoError(t, err)
	require.Equal(t, "crumb.jpg", stored.Photos[0].Name)
	require.Equal(t, []byte("jpeg"), stored.ReferencePhotos[0].Data)

	out.Reset()
	require.NoError(t, a.ListPosts())
	require.Equal(t, post.ID+"  Focaccia\n", out.String())

	out.Reset()
	require.NoError(t, a.ShowPost(post.ID))
	require.True(t, strings.HasPrefix(out.String(), "Focaccia\n"))
}

func TestClipFillsSource(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>Lemon Tart</title></head><body><article><p>Blind bake the crust.</p></article></body></html>`)
	}))
	t.Cleanup(page.Close)

	a, _ := newTestApp(t, "http://127.0.0.1:1", "")
	post, err := a.NewPost("")
	require.NoError(t, err)

	require.NoError(t, a.Clip(context.Background(), post.ID, page.URL))

	stored, err := a.Posts().Load(post.ID)
	require.NoError(t, err)
	require.Equal(t, "Lemon Tart", stored.Title)
	require.Equal(t, page.URL, stored.SourceURL)
	require.Equal(t, "Blind bake the crust.", stored.SourceText)
}

func TestRouterServesHealth(t *testing.T) {
	a, _ := newTestApp(t, "http://127.0.0.1:1", "")

	rec := httptest.NewRecorder()
	a.Router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"idle"`)
}

func TestMetricsReport(t *testing.T) {
	a, out := newTestApp(t, "http://127.0.0.1:1", "")

	require.NoError(t, a.PrintMetrics(7))
	require.Contains(t, out.String(), "Draft usage (last 7 days)")
	require.Contains(t, out.String(), "No data yet")

	out.Reset()
	require.NoError(t, a.CleanupMetrics(30))
	require.Equal(t, "Successfully removed 0 old metric records.\n", out.String())
}
