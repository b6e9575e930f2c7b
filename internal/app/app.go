package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mcdickies/savor/internal/clipper"
	"github.com/mcdickies/savor/internal/config"
	"github.com/mcdickies/savor/internal/database"
	"github.com/mcdickies/savor/internal/draft"
	"github.com/mcdickies/savor/internal/httpapi"
	"github.com/mcdickies/savor/internal/keystore"
	"github.com/mcdickies/savor/internal/llm"
	"github.com/mcdickies/savor/internal/metrics"
	"github.com/mcdickies/savor/internal/speech"
	"github.com/mcdickies/savor/internal/storage"
)

// App holds the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	db           *database.DB
	keys         keystore.Store
	posts        *storage.PostStore
	metricsStore *metrics.Store
	drafts       *llm.DraftService
	clipper      *clipper.Clipper
	transcriber  *speech.GeminiTranscriber
}

// Option customizes an App.
type Option func(*App)

// WithOutput redirects command output, which defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New opens the database and post workspace and wires every component.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var keys keystore.Store
	if cfg.KeystoreSecret != "" {
		keys, err = keystore.NewSQLStore(db.SQL, cfg.KeystoreSecret)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open keystore: %w", err)
		}
	} else {
		logger.Warn("KEYSTORE_SECRET not set, stored keys last only for this process")
		keys = keystore.NewMemoryStore()
	}

	posts, err := storage.NewPostStore(cfg.PostStoragePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize post store: %w", err)
	}

	a := &App{
		cfg:          cfg,
		logger:       logger,
		out:          os.Stdout,
		db:           db,
		keys:         keys,
		posts:        posts,
		metricsStore: metrics.NewStore(db.SQL),
		clipper:      clipper.NewClipper(nil, clipper.DefaultMaxChars),
	}
	a.drafts = llm.NewDraftService(cfg, keys, llm.WithLogger(logger), llm.WithRecorder(a.metricsStore))
	for _, opt := range opts {
		opt(a)
	}
	a.transcriber = speech.NewGeminiTranscriber(cfg.GeminiModel, a.drafts.ResolveAPIKey)
	return a, nil
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.db.Close()
}

func (a *App) Drafts() *llm.DraftService              { return a.drafts }
func (a *App) Posts() *storage.PostStore              { return a.posts }
func (a *App) Clipper() *clipper.Clipper              { return a.clipper }
func (a *App) Transcriber() *speech.GeminiTranscriber { return a.transcriber }
func (a *App) Metrics() *metrics.Store                { return a.metricsStore }

// Router builds the HTTP API. webhook may be nil.
func (a *App) Router(webhook http.Handler) http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Drafts:  a.drafts,
		Status:  a.drafts,
		Posts:   a.posts,
		Health:  a.Health,
		Webhook: webhook,
		Logger:  a.logger,
	})
}

// Health reports process and storage health.
func (a *App) Health() metrics.SysHealth {
	return metrics.GetSysHealth(a.cfg.DatabasePath, a.cfg.PostStoragePath)
}

// NewPost creates and stores an empty post.
func (a *App) NewPost(title string) (*draft.EditablePost, error) {
	post := &draft.EditablePost{Title: strings.TrimSpace(title)}
	if err := a.posts.Save(post); err != nil {
		return nil, err
	}
	fmt.Fprintf(a.out, "Created post %s\n", post.ID)
	return post, nil
}

// ListPosts prints the stored post IDs with their titles.
func (a *App) ListPosts() error {
	ids, err := a.posts.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "No posts yet.")
	}
	for _, id := range ids {
		post, err := a.posts.Load(id)
		if err != nil {
			a.logger.Warn("skipping unreadable post", zap.String("id", id), zap.Error(err))
			continue
		}
		fmt.Fprintf(a.out, "%s  %s\n", id, post.Title)
	}
	return nil
}

// ShowPost prints a stored post.
func (a *App) ShowPost(id string) error {
	post, err := a.posts.Load(id)
	if err != nil {
		return err
	}
	printPost(a.out, post)
	return nil
}

// update loads a post, applies fn and saves it.
func (a *App) update(id string, fn func(*draft.EditablePost) error) (*draft.EditablePost, error) {
	post, err := a.posts.Load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(post); err != nil {
		return nil, err
	}
	if err := a.posts.Save(post); err != nil {
		return nil, err
	}
	return post, nil
}

// AddPhoto attaches the image at path as a published or reference photo.
func (a *App) AddPhoto(id, path string, reference bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}
	img := draft.Image{Name: filepath.Base(path), Data: data}
	post, err := a.update(id, func(p *draft.EditablePost) error {
		if reference {
			p.ReferencePhotos = append(p.ReferencePhotos, img)
		} else {
			p.Photos = append(p.Photos, img)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Post %s now has %d photos and %d reference photos\n", id, len(post.Photos), len(post.ReferencePhotos))
	return nil
}

// AddIdea appends a brainstorming idea.
func (a *App) AddIdea(id, idea string) error {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return errors.New("idea is empty")
	}
	_, err := a.update(id, func(p *draft.EditablePost) error {
		p.Ideas = append(p.Ideas, idea)
		return nil
	})
	return err
}

// SetField sets one of the free-text fields of a post.
func (a *App) SetField(id, field, value string) error {
	_, err := a.update(id, func(p *draft.EditablePost) error {
		switch field {
		case "title":
			p.Title = value
		case "description":
			p.Description = value
		case "guidance":
			p.Guidance = value
		case "transcript":
			p.Transcript = value
		default:
			return fmt.Errorf("unknown field %q (want title, description, guidance or transcript)", field)
		}
		return nil
	})
	return err
}

// Clip fetches url and stores its text as the post's referenced page.
func (a *App) Clip(ctx context.Context, id, url string) error {
	clip, err := a.clipper.ClipURL(ctx, url)
	if err != nil {
		return err
	}
	_, err = a.update(id, func(p *draft.EditablePost) error {
		p.SourceURL = clip.URL
		p.SourceText = clip.Text
		if strings.TrimSpace(p.Title) == "" {
			p.Title = clip.Title
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Clipped %q (%d characters)\n", clip.Title, len([]rune(clip.Text)))
	return nil
}

// Transcribe transcribes the audio file at path and appends it to the post's transcript.
func (a *App) Transcribe(ctx context.Context, id, path, mimeType string) error {
	audio, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	text, err := a.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return err
	}
	_, err = a.update(id, func(p *draft.EditablePost) error {
		p.Transcript = strings.TrimSpace(p.Transcript + "\n" + text)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, text)
	return nil
}

// Draft generates a draft for a stored post, saves the merged result and prints it.
func (a *App) Draft(ctx context.Context, id string) error {
	post, err := a.posts.Load(id)
	if err != nil {
		return err
	}
	if _, err := a.drafts.GenerateAndApply(ctx, post); err != nil {
		return err
	}
	if err := a.posts.Save(post); err != nil {
		return err
	}
	printPost(a.out, post)
	return nil
}
