package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidName = errors.New("storage: invalid file name")
	ErrNotFound    = errors.New("storage: file not found")
)

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+\.(pdf|pptx)$`)

// ValidFileName reports whether name is a downloadable artifact name. It is a
// pure string check and never touches the filesystem.
func ValidFileName(name string) bool {
	return fileNamePattern.MatchString(name)
}

// FileStore persists generated artifacts onto the local filesystem. Files are
// written once per name and never rewritten.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Save writes data under name. The bytes go to a temp file first and are
// linked into place, so readers never observe a partial file. If name already
// exists the existing file is kept.
func (s *FileStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidFileName(name) {
		return ErrInvalidName
	}
	final := filepath.Join(s.basePath, name)

	tmp, err := os.CreateTemp(s.basePath, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close file: %w", err)
	}

	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("storage: publish file: %w", err)
	}
	return nil
}

// Open returns the artifact for reading. The caller closes it.
func (s *FileStore) Open(name string) (*os.File, os.FileInfo, error) {
	if !ValidFileName(name) {
		return nil, nil, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(s.basePath, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("storage: open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("storage: stat file: %w", err)
	}
	return f, info, nil
}

func (s *FileStore) Remove(name string) error {
	if !ValidFileName(name) {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(s.basePath, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// RemoveOlderThan deletes artifacts last modified before cutoff and returns
// how many were removed.
func (s *FileStore) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("storage: list files: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !ValidFileName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := s.Remove(e.Name()); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
