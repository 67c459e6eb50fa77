package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the token pair in a JSON file readable only by the
// owner. A missing file means no tokens.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ TokenStore = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path is the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) AccessToken(context.Context) (string, error) {
	pair, err := s.load()
	return pair.AccessToken, err
}

func (s *FileStore) RefreshToken(context.Context) (string, error) {
	pair, err := s.load()
	return pair.RefreshToken, err
}

// SaveTokens writes pair atomically. An empty refresh token keeps the
// previous one.
func (s *FileStore) SaveTokens(_ context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pair.RefreshToken == "" {
		prev, err := s.read()
		if err != nil {
			return err
		}
		pair.RefreshToken = prev.RefreshToken
	}
	return s.write(pair)
}

func (s *FileStore) ClearTokens(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("auth: clear tokens: %w", err)
	}
	return nil
}

func (s *FileStore) load() (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() (TokenPair, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return TokenPair{}, nil
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: read tokens: %w", err)
	}

	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("auth: decode %s: %w", s.path, err)
	}
	return pair, nil
}

func (s *FileStore) write(pair TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("auth: create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("auth: write tokens: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: write tokens: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("auth: write tokens: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("auth: write tokens: %w", err)
	}
	return nil
}
