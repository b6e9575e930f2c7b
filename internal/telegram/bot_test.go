package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/mcdickies/savor/internal/clipper"
	"github.com/mcdickies/savor/internal/creative"
	"github.com/mcdickies/savor/internal/draft"
	"github.com/mcdickies/savor/internal/llm"
	"github.com/mcdickies/savor/internal/metrics"
	"github.com/mcdickies/savor/internal/richtext"
	"github.com/mcdickies/savor/internal/storage"
)

const (
	chatID  int64 = 555
	ownerID int64 = 42
)

// --- Mocks ---

type MockAPI struct {
	mu      sync.Mutex
	sent    []string
	fileURL string
}

func (m *MockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (m *MockAPI) GetFileDirectURL(fileID string) (string, error) {
	return m.fileURL + "/file/" + fileID, nil
}

func (m *MockAPI) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
}

func (m *MockAPI) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type MockDrafts struct {
	Draft *draft.Draft
	Err   error
	Seen  draft.EditablePost
}

func (m *MockDrafts) Generate(_ context.Context, post *draft.EditablePost) (*draft.Draft, error) {
	m.Seen = *post
	return m.Draft, m.Err
}

func (m *MockDrafts) GenerateAndApply(ctx context.Context, post *draft.EditablePost) (*draft.Draft, error) {
	d, err := m.Generate(ctx, post)
	if err != nil {
		return nil, err
	}
	draft.Apply(post, d)
	return d, nil
}

type MockClipper struct{}

func (MockClipper) ClipURL(_ context.Context, url string) (*clipper.Clip, error) {
	return &clipper.Clip{URL: url, Title: "Lemon Tart", Text: "Blind bake the crust."}, nil
}

type MockTranscriber struct {
	Text string
}

func (m MockTranscriber) Transcribe(_ context.Context, audio []byte, mimeType string) (string, error) {
	if string(audio) != "voice-bytes" || mimeType != "audio/ogg" {
		return "", errors.New("unexpected audio")
	}
	return m.Text, nil
}

type MockUsage struct{}

func (MockUsage) GetDailyUsage(int) ([]metrics.DailyUsage, error) {
	return []metrics.DailyUsage{{Date: "2026-03-10", TotalPrompt: 100, TotalCompletion: 20, TotalExecution: 3, Failures: 1}}, nil
}

// --- Helpers ---

type fixture struct {
	bot      *Bot
	api      *MockAPI
	drafts   *MockDrafts
	sessions *SessionStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/file/voice-1":
			w.Write([]byte("voice-bytes"))
		case "/file/missing":
			http.NotFound(w, r)
		default:
			w.Write([]byte("jpeg:" + strings.TrimPrefix(r.URL.Path, "/file/")))
		}
	}))
	t.Cleanup(files.Close)

	posts, err := storage.NewPostStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		api:      &MockAPI{fileURL: files.URL},
		drafts:   &MockDrafts{},
		sessions: NewSessionStore(posts),
	}
	f.bot = NewBot(Deps{
		API:         f.api,
		Drafts:      f.drafts,
		Clipper:     MockClipper{},
		Transcriber: MockTranscriber{Text: "simmer for an hour"},
		Sessions:    f.sessions,
		Usage:       MockUsage{},
		HTTPClient:  files.Client(),
		Allowed:     func(id int64) bool { return id == ownerID },
	})
	return f
}

func message(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: from, UserName: "cook"},
	}
}

func command(text string) tgbotapi.Update {
	msg := message(ownerID, text)
	length := strings.IndexByte(text, ' ')
	if length < 0 {
		length = len(text)
	}
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	return tgbotapi.Update{Message: msg}
}

func (f *fixture) send(t *testing.T, update tgbotapi.Update) {
	t.Helper()
	f.bot.HandleUpdate(context.Background(), update)
}

func (f *fixture) post(t *testing.T) *draft.EditablePost {
	t.Helper()
	post, err := f.sessions.Get(chatID)
	require.NoError(t, err)
	return post
}

// --- Tests ---

func TestHandleUpdateIgnoresStrangers(t *testing.T) {
	f := newFixture(t)

	f.send(t, tgbotapi.Update{Message: message(7, "add chili")})

	require.Zero(t, f.api.Count())
	require.Empty(t, f.post(t).Ideas)
}

func TestWorkshopFlow(t *testing.T) {
	f := newFixture(t)

	f.send(t, tgbotapi.Update{Message: message(ownerID, "  add a squeeze of lime ")})
	require.Equal(t, "💡 Idea 1 saved.", f.api.Last())

	f.send(t, command("/title Fish Tacos"))
	f.send(t, command("/guide keep it weeknight friendly"))
	f.send(t, command("/url https://example.com/tacos"))
	require.Contains(t, f.api.Last(), "Lemon Tart")

	f.drafts.Draft = &draft.Draft{
		Summary:                   ptrTo("Crispy & bright"),
		Ingredients:               []string{"cod", "tortillas"},
		Instructions:              []string{"Fry the fish", "Serve warm"},
		InstructionCreativeRanges: [][]creative.Range{{{Location: 4, Length: 3}}, nil},
		Notes:                     []string{"Use any white fish"},
	}
	f.send(t, command("/draft"))

	seen := f.drafts.Seen
	require.Equal(t, "Fish Tacos", seen.Title)
	require.Equal(t, []string{"add a squeeze of lime"}, seen.Ideas)
	require.Equal(t, "keep it weeknight friendly", seen.Guidance)
	require.Equal(t, "Blind bake the crust.", seen.SourceText)

	post := f.post(t)
	require.Equal(t, "Crispy & bright", post.Description)
	require.Equal(t, "1. Fry the fish\n2. Serve warm", post.Recipe.Text)

	reply := f.api.Last()
	require.Contains(t, reply, "<b>Fish Tacos</b>")
	require.Contains(t, reply, "Crispy &amp; bright")
	require.Contains(t, reply, "1. Fry <i>the</i> fish")
	require.Contains(t, reply, "• Use any white fish")
}

func TestDraftFailureLeavesPost(t *testing.T) {
	f := newFixture(t)
	f.send(t, command("/title Stew"))

	f.drafts.Err = llm.ErrMissingAPIKey
	f.send(t, command("/draft"))

	require.Equal(t, "❌ Add a Gemini API key in Settings to draft with AI.", f.api.Last())
	require.Equal(t, "Stew", f.post(t).Title)
	require.True(t, f.post(t).Recipe.IsEmpty())
}

func TestPhotosAndReferencePhotos(t *testing.T) {
	f := newFixture(t)

	photo := message(ownerID, "")
	photo.Photo = []tgbotapi.PhotoSize{{FileID: "small", FileUniqueID: "s"}, {FileID: "large", FileUniqueID: "l"}}
	f.send(t, tgbotapi.Update{Message: photo})
	require.Equal(t, "📸 Photo 1 saved.", f.api.Last())

	ref := message(ownerID, "")
	ref.Caption = " REF "
	ref.Photo = []tgbotapi.PhotoSize{{FileID: "plating", FileUniqueID: "p"}}
	f.send(t, tgbotapi.Update{Message: ref})
	require.Equal(t, "📸 Reference photo 1 saved.", f.api.Last())

	post := f.post(t)
	require.Len(t, post.Photos, 1)
	require.Equal(t, "jpeg:large", string(post.Photos[0].Data))
	require.Len(t, post.ReferencePhotos, 1)
	require.Equal(t, "jpeg:plating", string(post.ReferencePhotos[0].Data))

	missing := message(ownerID, "")
	missing.Photo = []tgbotapi.PhotoSize{{FileID: "missing"}}
	f.send(t, tgbotapi.Update{Message: missing})
	require.Equal(t, "❌ Error downloading your photo.", f.api.Last())
	require.Len(t, f.post(t).Photos, 1)
}

func TestVoiceMemoAppendsTranscript(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		voice := message(ownerID, "")
		voice.Voice = &tgbotapi.Voice{FileID: "voice-1"}
		f.send(t, tgbotapi.Update{Message: voice})
	}

	require.Equal(t, "🎙 <i>simmer for an hour</i>", f.api.Last())
	require.Equal(t, "simmer for an hour\nsimmer for an hour", f.post(t).Transcript)
}

func TestPlainURLIsClipped(t *testing.T) {
	f := newFixture(t)

	f.send(t, tgbotapi.Update{Message: message(ownerID, "https://example.com/tart")})

	post := f.post(t)
	require.Equal(t, "https://example.com/tart", post.SourceURL)
	require.Equal(t, "Lemon Tart", post.Title)
	require.Empty(t, post.Ideas)
}

func TestResetAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.send(t, tgbotapi.Update{Message: message(ownerID, "idea")})

	f.send(t, command("/reset"))
	require.Equal(t, "🧹 Started a fresh post.", f.api.Last())
	require.Empty(t, f.post(t).Ideas)

	f.send(t, command("/metrics"))
	require.Contains(t, f.api.Last(), "<b>2026-03-10</b>: 120 tokens (3 requests, 1 failed)")

	f.send(t, command("/title"))
	require.Equal(t, "Please add some text after the command.", f.api.Last())
}

func TestServeHTTPRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.bot.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormatPostHTML(t *testing.T) {
	post := &draft.EditablePost{
		Title:       "Mac <& Cheese>",
		Ingredients: []string{"macaroni"},
		Recipe:      richtext.New("Bake until golden", []creative.Range{{Location: 11, Length: 6}}),
		Photos:      []draft.Image{{}, {}},
	}

	out := formatPostHTML(post)
	require.Contains(t, out, "<b>Mac &lt;&amp; Cheese&gt;</b>")
	require.Contains(t, out, "• macaroni")
	require.Contains(t, out, "Bake until <i>golden</i>")
	require.Contains(t, out, "<i>2 photos, 0 reference, 0 ideas</i>")
	require.NotContains(t, out, "Notes")

	require.Contains(t, formatPostHTML(&draft.EditablePost{}), "Untitled recipe")
}

func ptrTo(s string) *string { return &s }
