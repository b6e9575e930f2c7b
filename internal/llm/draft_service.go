package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcdickies/savor/internal/config"
	"github.com/mcdickies/savor/internal/draft"
	"github.com/mcdickies/savor/internal/imaging"
	"github.com/mcdickies/savor/internal/keystore"
	"github.com/mcdickies/savor/internal/observability"
	"github.com/mcdickies/savor/internal/shared"
)

const (
	// APIKeyName is the keystore entry holding the Gemini API key.
	APIKeyName = "ai.gemini.apiKey"
	// RequestTimeout bounds a single generation round trip.
	RequestTimeout = 60 * time.Second

	DefaultModel   = "gemini-1.5-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	agentName       = "recipe-draft"
	maxResponseSize = 8 << 20
)

// State is the orchestrator's request lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRequesting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option configures a DraftService.
type Option func(*DraftService)

// WithHTTPClient replaces the transport used for generation calls.
func WithHTTPClient(d Doer) Option {
	return func(s *DraftService) { s.client = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *DraftService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithEncoder(enc draft.ImageEncoder) Option {
	return func(s *DraftService) { s.encoder = enc }
}

// WithRecorder stores metadata of every request, including rejected ones.
func WithRecorder(r Recorder) Option {
	return func(s *DraftService) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *DraftService) { s.now = now }
}

// DraftService owns the draft request lifecycle: at most one request is in
// flight per instance, and every call returns the service to StateIdle.
type DraftService struct {
	model       string
	baseURL     string
	fallbackKey string

	keys     keystore.Getter
	client   Doer
	encoder  draft.ImageEncoder
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	state         atomic.Int32
	lastCompleted atomic.Int64
}

// NewDraftService creates a DraftService. keys may be nil, in which case only
// the configured fallback key is used.
func NewDraftService(cfg *config.Config, keys keystore.Getter, opts ...Option) *DraftService {
	s := &DraftService{
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
		keys:    keys,
		client:  &http.Client{Timeout: RequestTimeout},
		encoder: imaging.NewJPEGEncoder(imaging.DefaultQuality),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	if cfg != nil {
		if cfg.GeminiModel != "" {
			s.model = cfg.GeminiModel
		}
		if cfg.GeminiBaseURL != "" {
			s.baseURL = cfg.GeminiBaseURL
		}
		s.fallbackKey = cfg.GeminiAPIKey
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports whether a request is currently in flight.
func (s *DraftService) State() State {
	return State(s.state.Load())
}

// LastCompletedAt returns when the last successful request finished, or the
// zero time.
func (s *DraftService) LastCompletedAt() time.Time {
	ns := s.lastCompleted.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GenerateAndApply generates a draft and merges it into post. post is left
// untouched on error.
func (s *DraftService) GenerateAndApply(ctx context.Context, post *draft.EditablePost) (*draft.Draft, error) {
	d, err := s.Generate(ctx, post)
	if err != nil {
		return nil, err
	}
	draft.Apply(post, d)
	return d, nil
}

// Generate requests a recipe draft for post. A call made while another is in
// flight fails with ErrRequestInFlight without touching the network.
func (s *DraftService) Generate(ctx context.Context, post *draft.EditablePost) (*draft.Draft, error) {
	meta := shared.AgentMeta{AgentName: agentName, RequestID: uuid.NewString()}
	logger := s.logger.With(zap.String("request_id", meta.RequestID))

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRequesting)) {
		meta.Outcome = shared.OutcomeRejected
		meta.ErrorKind = errorKind(ErrRequestInFlight)
		s.record(logger, meta)
		logger.Info("draft request rejected", zap.String("reason", "in flight"))
		return nil, ErrRequestInFlight
	}
	defer s.state.Store(int32(StateIdle))

	start := s.now()
	d, usage, err := s.generate(ctx, logger, post)
	meta.Usage = usage
	meta.Latency = s.now().Sub(start)

	if err != nil {
		meta.Outcome = shared.OutcomeFailed
		meta.ErrorKind = errorKind(err)
		s.record(logger, meta)
		fields := []zap.Field{
			zap.String("error_kind", meta.ErrorKind),
			zap.Error(err),
			zap.Duration("latency", meta.Latency),
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			fields = append(fields,
				zap.Int("upstream_status", apiErr.Status),
				zap.String("upstream_message", observability.SanitizeText(apiErr.Message)),
			)
		}
		logger.Warn("draft request failed", fields...)
		return nil, err
	}

	s.lastCompleted.Store(s.now().UnixNano())
	meta.Outcome = shared.OutcomeSuccess
	s.record(logger, meta)
	logger.Info("draft generated",
		zap.Duration("latency", meta.Latency),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Int("instructions", len(d.Instructions)),
		zap.Int("recipe_highlights", len(d.RecipeCreativeRanges)),
	)
	return d, nil
}

func (s *DraftService) generate(ctx context.Context, logger *zap.Logger, post *draft.EditablePost) (*draft.Draft, shared.TokenUsage, error) {
	noUsage := shared.TokenUsage{Model: s.model}

	key, err := s.ResolveAPIKey(ctx)
	if err != nil {
		return nil, noUsage, err
	}

	endpoint, err := s.endpoint(key)
	if err != nil {
		return nil, noUsage, err
	}

	payload, err := draft.BuildRequest(ctx, draft.InputFromPost(post), s.encoder)
	if err != nil {
		return nil, noUsage, fmt.Errorf("failed to build request: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, noUsage, fmt.Errorf("failed to marshal request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, noUsage, ErrInvalidURL
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("sending draft request",
		zap.String("endpoint", redactKey(endpoint)),
		zap.Int("parts", len(payload.Parts())),
		zap.Int("body_bytes", len(body)),
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, noUsage, fmt.Errorf("%w: %w", ErrInvalidResponse, transportCause(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, noUsage, fmt.Errorf("%w: %w", ErrInvalidResponse, transportCause(err))
	}

	d, usage, err := draft.DecodeResponse(resp.StatusCode, raw)
	if usage.Model == "" {
		usage.Model = s.model
	}
	return d, usage, err
}

// ResolveAPIKey returns the keystore entry when set, else the configured
// fallback. Blank values count as absent.
func (s *DraftService) ResolveAPIKey(ctx context.Context) (string, error) {
	if s.keys != nil {
		v, err := s.keys.Get(ctx, APIKeyName)
		switch {
		case err == nil:
			if key := strings.TrimSpace(v); key != "" {
				return key, nil
			}
		case !errors.Is(err, keystore.ErrNotFound):
			s.logger.Warn("keystore lookup failed, using fallback", zap.Error(err))
		}
	}
	if key := strings.TrimSpace(s.fallbackKey); key != "" {
		return key, nil
	}
	return "", ErrMissingAPIKey
}

func (s *DraftService) endpoint(key string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(s.baseURL, "/") + "/" + url.PathEscape(s.model) + ":generateContent")
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u, nil
}

func (s *DraftService) record(logger *zap.Logger, meta shared.AgentMeta) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordMeta(meta); err != nil {
		logger.Warn("failed to record draft metrics", zap.Error(err))
	}
}

// transportCause drops the request URL, which carries the API key, from
// net/http errors.
func transportCause(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func redactKey(u *url.URL) string {
	c := *u
	q := c.Query()
	if q.Has("key") {
		q.Set("key", observability.Redact(q.Get("key")))
		c.RawQuery = q.Encode()
	}
	return c.String()
}
