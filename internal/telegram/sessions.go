package telegram

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mcdickies/savor/internal/draft"
	"github.com/mcdickies/savor/internal/storage"
)

// PostRepository persists in-progress posts.
type PostRepository interface {
	Load(id string) (*draft.EditablePost, error)
	Save(post *draft.EditablePost) error
	Delete(id string) error
}

// SessionStore keeps one in-progress post per chat. Updates for the same chat
// are serialized.
type SessionStore struct {
	posts PostRepository

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewSessionStore creates a SessionStore backed by posts.
func NewSessionStore(posts PostRepository) *SessionStore {
	return &SessionStore{posts: posts, locks: make(map[int64]*sync.Mutex)}
}

func sessionID(chatID int64) string {
	return fmt.Sprintf("tg%d", chatID)
}

func (s *SessionStore) lock(chatID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns the chat's post, or an empty one when none is stored.
func (s *SessionStore) Get(chatID int64) (*draft.EditablePost, error) {
	post, err := s.posts.Load(sessionID(chatID))
	if errors.Is(err, storage.ErrNotFound) {
		return &draft.EditablePost{ID: sessionID(chatID)}, nil
	}
	return post, err
}

// Update loads the chat's post, applies fn and saves the result. Nothing is
// saved when fn fails.
func (s *SessionStore) Update(chatID int64, fn func(post *draft.EditablePost) error) (*draft.EditablePost, error) {
	unlock := s.lock(chatID)
	defer unlock()

	post, err := s.Get(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := fn(post); err != nil {
		return post, err
	}
	if err := s.posts.Save(post); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return post, nil
}

// Reset discards the chat's post.
func (s *SessionStore) Reset(chatID int64) error {
	unlock := s.lock(chatID)
	defer unlock()
	return s.posts.Delete(sessionID(chatID))
}
