package llm

import (
	"context"
	"net/http"

	"github.com/mcdickies/savor/internal/draft"
	"github.com/mcdickies/savor/internal/shared"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DraftGenerator produces recipe drafts for an editable post.
type DraftGenerator interface {
	Generate(ctx context.Context, post *draft.EditablePost) (*draft.Draft, error)
	GenerateAndApply(ctx context.Context, post *draft.EditablePost) (*draft.Draft, error)
}

// Recorder persists per-request metadata such as latency and token usage.
type Recorder interface {
	RecordMeta(meta shared.AgentMeta) error
}
