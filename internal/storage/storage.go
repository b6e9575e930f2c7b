package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mcdickies/savor/internal/draft"
)

var (
	// ErrNotFound is returned when no post file exists for an ID.
	ErrNotFound = errors.New("post not found")
	// ErrInvalidID is returned for IDs that are not safe as file names.
	ErrInvalidID = errors.New("invalid post id")
)

// PostStore provides file-based storage for in-progress posts, one JSON file per post.
type PostStore struct {
	basePath string
}

// NewPostStore creates a new PostStore and ensures the base directory exists.
func NewPostStore(basePath string) (*PostStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &PostStore{basePath: basePath}, nil
}

// NewID returns a fresh post ID.
func NewID() string {
	return uuid.NewString()
}

func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *PostStore) path(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

// Save writes the post, assigning an ID first when it has none. The file is
// replaced atomically.
func (s *PostStore) Save(post *draft.EditablePost) error {
	if post.ID == "" {
		post.ID = NewID()
	}
	filePath, err := s.path(post.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, post.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write post file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write post file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to replace post file: %w", err)
	}
	return nil
}

// Load retrieves a post by ID.
func (s *PostStore) Load(id string) (*draft.EditablePost, error) {
	filePath, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read post file: %w", err)
	}

	var post draft.EditablePost
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}
	post.ID = id
	return &post, nil
}

// Delete removes a post. Deleting a missing post is not an error.
func (s *PostStore) Delete(id string) error {
	filePath, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove post file: %w", err)
	}
	return nil
}

// List returns the IDs of all stored posts in lexical order.
func (s *PostStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.basePath, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ".json")
		if validID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
