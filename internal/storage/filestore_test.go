package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"presentation-service/internal/storage"
)

func TestValidFileName(t *testing.T) {
	cases := map[string]bool{
		"report.pdf":           true,
		"abc_123-x.pptx":       true,
		"../../etc/passwd.pdf": false,
		"report.docx":          false,
		"report":               false,
		"re port.pdf":          false,
		".pdf":                 false,
		"report.pdf/extra":     false,
	}
	for name, want := range cases {
		if got := storage.ValidFileName(name); got != want {
			t.Fatalf("ValidFileName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFileStore_SaveOpen(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, "abc123.pdf", []byte("first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// write-once: a second save keeps the original bytes
	if err := fs.Save(ctx, "abc123.pdf", []byte("second")); err != nil {
		t.Fatalf("second save: %v", err)
	}

	f, info, err := fs.Open("abc123.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	b, _ := io.ReadAll(f)
	if string(b) != "first" || info.Size() != int64(len("first")) {
		t.Fatalf("expected original content, got %q", b)
	}

	entries, _ := os.ReadDir(fs.BasePath())
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact in the directory, got %d entries", len(entries))
	}
}

func TestFileStore_Errors(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := fs.Open("missing.pdf"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := fs.Open("../../etc/passwd.pdf"); !errors.Is(err, storage.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if err := fs.Save(context.Background(), "nested/x.pdf", []byte("x")); !errors.Is(err, storage.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestFileStore_RemoveOlderThan(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	_ = fs.Save(ctx, "old.pdf", []byte("o"))
	_ = fs.Save(ctx, "new.pptx", []byte("n"))

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "old.pdf"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	n, err := fs.RemoveOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if _, _, err := fs.Open("old.pdf"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected old.pdf removed, got %v", err)
	}
	f, _, err := fs.Open("new.pptx")
	if err != nil {
		t.Fatalf("expected new.pptx kept, got %v", err)
	}
	_ = f.Close()
}
