package tokenstore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/minechat/internal/logging"
)

type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Read returns the first line of the token file.
func (s *FileStore) Read(context.Context) (string, bool, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("tokenstore: read %s: %w", s.Path, err)
	}
	line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	token := strings.TrimSpace(string(line))
	return token, token != "", nil
}

// Write replaces the token file atomically.
func (s *FileStore) Write(_ context.Context, token string) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("tokenstore: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".minechat-token-*")
	if err != nil {
		return fmt.Errorf("tokenstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(strings.TrimSpace(token)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tokenstore: write temp: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tokenstore: chmod temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("tokenstore: rename: %w", err)
	}
	logging.Debugf("tokenstore.FileStore.Write path=%q", s.Path)
	return nil
}
