package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestNormalizePrefix(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"uploads":   "uploads/",
		"/uploads/": "uploads/",
		" a/b ":     "a/b/",
	}
	for in, want := range cases {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestMapObjectErrorNotFound(t *testing.T) {
	err := mapObjectError("stat object", minio.ErrorResponse{Code: "NoSuchKey", Message: "missing"})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}

	other := mapObjectError("stat object", errors.New("connection reset"))
	if domain.IsKind(other, domain.ErrDocumentNotFound) {
		t.Fatalf("expected generic error, got %v", other)
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}
