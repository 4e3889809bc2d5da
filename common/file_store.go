package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var _ SessionStore = (*FileStore)(nil)

type fileSession struct {
	Key       string    `json:"key"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FileStore keeps the credential in a JSON file so it outlives the process.
// Nothing touches the disk until the first Set.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  string
	now  func() time.Time
}

// NewFileStore returns a FileStore writing to path. An empty key means AccessTokenKey.
func NewFileStore(path, key string) *FileStore {
	if key == "" {
		key = AccessTokenKey
	}
	return &FileStore{
		path: path,
		key:  key,
		now:  time.Now,
	}
}

// Path is the file the credential is written to.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess fileSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return "", false, fmt.Errorf("failed to parse session file: %w", err)
	}
	if sess.Key != s.key || sess.Token == "" || !s.now().Before(sess.ExpiresAt) {
		return "", false, nil
	}
	return sess.Token, true, nil
}

func (s *FileStore) Set(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	data, err := json.MarshalIndent(fileSession{
		Key:       s.key,
		Token:     token,
		ExpiresAt: s.now().Add(ttl),
	}, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	// write then rename so a concurrent reader never sees a partial file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
