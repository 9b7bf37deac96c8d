package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects on disk under a base directory. Used for
// development and in tests; keys are slash-separated relative paths.
type LocalStorage struct {
	base string
}

func NewLocalStorage(base string) (*LocalStorage, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &LocalStorage{base: base}, nil
}

func (s *LocalStorage) path(key string) string {
	clean := filepath.FromSlash(strings.TrimLeft(key, "/"))
	return filepath.Join(s.base, clean)
}

func (s *LocalStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	return os.Open(s.path(key))
}

func (s *LocalStorage) Upload(_ context.Context, key string, data io.Reader) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	f, err := os.Create(p)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, data)
	return err
}

func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	return os.Remove(s.path(key))
}
