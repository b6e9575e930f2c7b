// Package httpapi exposes draft generation over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mcdickies/savor/internal/draft"
	"github.com/mcdickies/savor/internal/llm"
	"github.com/mcdickies/savor/internal/metrics"
	"github.com/mcdickies/savor/internal/observability"
)

const maxBodyBytes = 32 << 20

// StatusReporter exposes the orchestrator's lifecycle for health checks.
type StatusReporter interface {
	State() llm.State
	LastCompletedAt() time.Time
}

// PostRepository persists in-progress posts.
type PostRepository interface {
	Load(id string) (*draft.EditablePost, error)
	Save(post *draft.EditablePost) error
}

// Deps are the collaborators of the router. Posts, Health and Webhook are optional.
type Deps struct {
	Drafts  llm.DraftGenerator
	Status  StatusReporter
	Posts   PostRepository
	Health  func() metrics.SysHealth
	Webhook http.Handler
	Logger  *zap.Logger
}

type handlers struct {
	Deps
}

// NewRouter builds the HTTP API.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/drafts", h.createDraft)
		if deps.Posts != nil {
			r.Get("/posts/{id}", h.getPost)
			r.Put("/posts/{id}", h.putPost)
			r.Post("/posts/{id}/draft", h.draftPost)
		}
	})
	if deps.Webhook != nil {
		r.Method(http.MethodPost, "/webhook", deps.Webhook)
	}
	return r
}

type healthResponse struct {
	Status          string             `json:"status"`
	State           string             `json:"state"`
	LastCompletedAt *time.Time         `json:"lastCompletedAt,omitempty"`
	System          *metrics.SysHealth `json:"system,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", State: llm.StateIdle.String()}
	if h.Status != nil {
		resp.State = h.Status.State().String()
		if at := h.Status.LastCompletedAt(); !at.IsZero() {
			resp.LastCompletedAt = &at
		}
	}
	if h.Health != nil {
		sys := h.Health()
		resp.System = &sys
	}
	writeJSON(w, http.StatusOK, resp)
}

type draftResponse struct {
	Draft *draft.Draft        `json:"draft"`
	Post  *draft.EditablePost `json:"post"`
}

func (h *handlers) createDraft(w http.ResponseWriter, r *http.Request) {
	var post draft.EditablePost
	if !decodeBody(w, r, &post) {
		return
	}
	h.generate(w, r, &post)
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request, post *draft.EditablePost) {
	d, err := h.Drafts.GenerateAndApply(r.Context(), post)
	if err != nil {
		observability.FromContext(r.Context()).Warn("draft generation failed", zap.Error(err))
		writeError(r.Context(), w, fromDraftError(err))
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Draft: d, Post: post})
}

func (h *handlers) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.Posts.Load(chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, fromStorageError(err))
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *handlers) putPost(w http.ResponseWriter, r *http.Request) {
	var post draft.EditablePost
	if !decodeBody(w, r, &post) {
		return
	}
	post.ID = chi.URLParam(r, "id")
	if err := h.Posts.Save(&post); err != nil {
		writeError(r.Context(), w, fromStorageError(err))
		return
	}
	writeJSON(w, http.StatusOK, &post)
}

// draftPost generates a draft for a stored post and saves the merged result.
func (h *handlers) draftPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.Posts.Load(chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, fromStorageError(err))
		return
	}
	d, err := h.Drafts.GenerateAndApply(r.Context(), post)
	if err != nil {
		writeError(r.Context(), w, fromDraftError(err))
		return
	}
	if err := h.Posts.Save(post); err != nil {
		writeError(r.Context(), w, fromStorageError(err))
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Draft: d, Post: post})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(r.Context(), w, apiError{
			Code:    "invalid_body",
			Message: "Request body must be a JSON post.",
			Status:  http.StatusBadRequest,
		})
		return false
	}
	return true
}
