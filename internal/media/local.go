package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes media below a root directory served at baseURL.
type LocalStorage struct {
	root    string
	baseURL string
}

func NewLocalStorage(root, baseURL string) *LocalStorage {
	return &LocalStorage{root: root, baseURL: baseURL}
}

func (s *LocalStorage) Root() string { return s.root }

func (s *LocalStorage) resolve(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("media path %q escapes root", p)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStorage) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return filepath.ToSlash(key), nil
}

func (s *LocalStorage) Delete(ctx context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func (s *LocalStorage) URL(p string) string {
	return joinURL(s.baseURL, p)
}
