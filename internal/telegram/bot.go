package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mcdickies/savor/internal/clipper"
	"github.com/mcdickies/savor/internal/draft"
	"github.com/mcdickies/savor/internal/llm"
	"github.com/mcdickies/savor/internal/metrics"
	"github.com/mcdickies/savor/internal/speech"
)

const (
	referenceCaption = "ref"
	maxDownloadBytes = 20 << 20
	handleTimeout    = 2 * time.Minute
)

const helpText = `🧑‍🍳 <b>Savor recipe workshop</b>

Send me what you have and I will draft a recipe post:
• a photo adds a post photo; caption it <code>ref</code> to keep it private as reference
• a voice memo is transcribed into the post
• any other text is saved as an idea
• /url &lt;link&gt; clips a recipe page for context
• /title &lt;text&gt; and /guide &lt;text&gt; set the title and your guidance
• /draft asks Gemini for a draft, /show prints the post, /reset starts over`

// botAPI is the subset of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Clipper extracts readable text from a recipe page.
type Clipper interface {
	ClipURL(ctx context.Context, url string) (*clipper.Clip, error)
}

// UsageReporter reports recent generation usage.
type UsageReporter interface {
	GetDailyUsage(days int) ([]metrics.DailyUsage, error)
}

// Deps are the collaborators of a Bot. Usage is optional.
type Deps struct {
	API         botAPI
	Drafts      llm.DraftGenerator
	Clipper     Clipper
	Transcriber speech.Transcriber
	Sessions    *SessionStore
	Usage       UsageReporter
	HTTPClient  llm.Doer
	Allowed     func(userID int64) bool
	Logger      *zap.Logger
}

// Bot turns Telegram messages into edits of a per-chat recipe post.
type Bot struct {
	Deps
}

// NewBotAPI authorizes the token and points the bot's webhook at webhookURL.
func NewBotAPI(token, webhookURL string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("telegram authorized", zap.String("account", api.Self.UserName))

	if webhookURL != "" {
		wh, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url: %w", err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook: %w", err)
		}
		logger.Info("telegram webhook set", zap.String("description", resp.Description))
	}
	return api, nil
}

// NewBot creates a Bot from its collaborators.
func NewBot(deps Deps) *Bot {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Allowed == nil {
		deps.Allowed = func(int64) bool { return false }
	}
	return &Bot{Deps: deps}
}

// ServeHTTP accepts webhook updates. Telegram only needs a 200, so updates are
// processed in the background.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.Logger.Warn("error parsing update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		b.HandleUpdate(ctx, update)
	}()
}

// HandleUpdate processes a single update from an allowed user.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.Allowed(msg.From.ID) {
		b.Logger.Warn("unauthorized access attempt",
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName),
		)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Voice != nil:
		b.handleVoice(ctx, msg)
	case isURL(msg.Text):
		b.handleClip(ctx, msg.Chat.ID, msg.Text)
	case strings.TrimSpace(msg.Text) != "":
		b.handleIdea(msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "url":
		if args == "" {
			b.reply(chatID, "Usage: /url &lt;link&gt;")
			return
		}
		b.handleClip(ctx, chatID, args)
	case "title":
		b.setField(chatID, args, "🏷 Title set.", func(p *draft.EditablePost) { p.Title = args })
	case "guide":
		b.setField(chatID, args, "🧭 Guidance saved.", func(p *draft.EditablePost) { p.Guidance = args })
	case "draft":
		b.handleDraft(ctx, chatID)
	case "show":
		post, err := b.Sessions.Get(chatID)
		if err != nil {
			b.fail(chatID, "loading your post", err)
			return
		}
		b.reply(chatID, formatPostHTML(post))
	case "reset":
		if err := b.Sessions.Reset(chatID); err != nil {
			b.fail(chatID, "resetting your post", err)
			return
		}
		b.reply(chatID, "🧹 Started a fresh post.")
	case "metrics":
		b.handleMetrics(chatID)
	default:
		b.reply(chatID, "Unknown command. Send /help for the list.")
	}
}

func (b *Bot) setField(chatID int64, value, confirmation string, set func(*draft.EditablePost)) {
	if value == "" {
		b.reply(chatID, "Please add some text after the command.")
		return
	}
	if _, err := b.Sessions.Update(chatID, func(p *draft.EditablePost) error {
		set(p)
		return nil
	}); err != nil {
		b.fail(chatID, "saving your post", err)
		return
	}
	b.reply(chatID, confirmation)
}

func (b *Bot) handleIdea(msg *tgbotapi.Message) {
	idea := strings.TrimSpace(msg.Text)
	post, err := b.Sessions.Update(msg.Chat.ID, func(p *draft.EditablePost) error {
		p.Ideas = append(p.Ideas, idea)
		return nil
	})
	if err != nil {
		b.fail(msg.Chat.ID, "saving your idea", err)
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("💡 Idea %d saved.", len(post.Ideas)))
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	// Telegram lists sizes smallest first.
	largest := msg.Photo[len(msg.Photo)-1]
	data, err := b.download(ctx, largest.FileID)
	if err != nil {
		b.fail(msg.Chat.ID, "downloading your photo", err)
		return
	}

	reference := strings.EqualFold(strings.TrimSpace(msg.Caption), referenceCaption)
	img := draft.Image{Name: largest.FileUniqueID + ".jpg", Data: data}
	post, err := b.Sessions.Update(msg.Chat.ID, func(p *draft.EditablePost) error {
		if reference {
			p.ReferencePhotos = append(p.ReferencePhotos, img)
		} else {
			p.Photos = append(p.Photos, img)
		}
		return nil
	})
	if err != nil {
		b.fail(msg.Chat.ID, "saving your photo", err)
		return
	}

	kind, count := "Photo", len(post.Photos)
	if reference {
		kind, count = "Reference photo", len(post.ReferencePhotos)
	}
	text := fmt.Sprintf("📸 %s %d saved.", kind, count)
	if count > draft.MaxImagesPerSet {
		text += fmt.Sprintf(" Only the first %d are sent to Gemini.", draft.MaxImagesPerSet)
	}
	b.reply(msg.Chat.ID, text)
}

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	data, err := b.download(ctx, msg.Voice.FileID)
	if err != nil {
		b.fail(msg.Chat.ID, "downloading your voice memo", err)
		return
	}
	mimeType := msg.Voice.MimeType
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	transcript, err := b.Transcriber.Transcribe(ctx, data, mimeType)
	if err != nil {
		b.Logger.Warn("transcription failed", zap.Error(err))
		b.reply(msg.Chat.ID, "❌ "+html.EscapeString(llm.UserMessage(err)))
		return
	}

	if _, err := b.Sessions.Update(msg.Chat.ID, func(p *draft.EditablePost) error {
		p.Transcript = strings.TrimSpace(strings.Join(nonEmpty(p.Transcript, transcript), "\n"))
		return nil
	}); err != nil {
		b.fail(msg.Chat.ID, "saving your transcript", err)
		return
	}
	b.reply(msg.Chat.ID, "🎙 <i>"+html.EscapeString(transcript)+"</i>")
}

func (b *Bot) handleClip(ctx context.Context, chatID int64, link string) {
	clip, err := b.Clipper.ClipURL(ctx, strings.TrimSpace(link))
	if err != nil {
		b.fail(chatID, "clipping that page", err)
		return
	}
	if _, err := b.Sessions.Update(chatID, func(p *draft.EditablePost) error {
		p.SourceURL = clip.URL
		p.SourceText = clip.Text
		if strings.TrimSpace(p.Title) == "" {
			p.Title = clip.Title
		}
		return nil
	}); err != nil {
		b.fail(chatID, "saving the clipped page", err)
		return
	}
	b.reply(chatID, fmt.Sprintf("✂️ Clipped <b>%s</b> for context.", html.EscapeString(clip.Title)))
}

func (b *Bot) handleDraft(ctx context.Context, chatID int64) {
	b.reply(chatID, "🧑‍🍳 <b>Drafting...</b>")

	post, err := b.Sessions.Update(chatID, func(p *draft.EditablePost) error {
		_, err := b.Drafts.GenerateAndApply(ctx, p)
		return err
	})
	if err != nil {
		b.Logger.Warn("draft failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(chatID, "❌ "+html.EscapeString(llm.UserMessage(err)))
		return
	}
	b.reply(chatID, formatPostHTML(post))
}

func (b *Bot) handleMetrics(chatID int64) {
	if b.Usage == nil {
		b.reply(chatID, "Metrics are not enabled.")
		return
	}
	usage, err := b.Usage.GetDailyUsage(7)
	if err != nil {
		b.fail(chatID, "fetching metrics", err)
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Drafts in the last 7 days</b>\n")
	if len(usage) == 0 {
		sb.WriteString("<i>No data yet</i>\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• <b>%s</b>: %d tokens (%d requests, %d failed)\n",
			d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution, d.Failures)
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.API.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		// The direct URL embeds the bot token.
		return nil, fmt.Errorf("failed to download file %s", fileID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.API.Send(msg); err != nil {
		b.Logger.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) fail(chatID int64, action string, err error) {
	b.Logger.Warn("telegram action failed", zap.String("action", action), zap.Error(err))
	b.reply(chatID, fmt.Sprintf("❌ Error %s.", action))
}

func isURL(text string) bool {
	text = strings.TrimSpace(text)
	return !strings.ContainsAny(text, " \n") &&
		(strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://"))
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
