package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestSaveOpenDelete(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := storage.Save(ctx, "doc-1_notes.txt", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reader, err := storage.Open(ctx, "doc-1_notes.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	raw, _ := io.ReadAll(reader)
	_ = reader.Close()
	if string(raw) != "hello" {
		t.Fatalf("expected hello, got %q", raw)
	}

	if err := storage.Delete(ctx, "doc-1_notes.txt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := storage.Delete(ctx, "doc-1_notes.txt"); err != nil {
		t.Fatalf("expected repeated delete to succeed, got %v", err)
	}
	if _, err := storage.Open(ctx, "doc-1_notes.txt"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestSaveRejectsShortWrite(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := storage.Save(context.Background(), "a.txt", strings.NewReader("abc"), 10); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected no committed file, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../escape.txt", "nested/file.txt", "", ".hidden"} {
		if err := storage.Save(context.Background(), key, strings.NewReader("x"), 1); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}
