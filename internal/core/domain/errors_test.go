package domain

import (
	"errors"
	"testing"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(ErrTemporary, "save document", cause)

	if err.Error() != "save document: temporary failure: disk full" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !IsKind(err, ErrTemporary) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause to be preserved")
	}
	if WrapError(ErrTemporary, "noop", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestKindName(t *testing.T) {
	cases := map[string]error{
		"invalid_input": WrapError(ErrInvalidInput, "op", errors.New("x")),
		"not_found":     WrapError(ErrDocumentNotFound, "op", errors.New("x")),
		"processing":    WrapError(ErrProcessing, "op", errors.New("x")),
		"internal":      errors.New("x"),
		"":              nil,
	}
	for want, err := range cases {
		if got := KindName(err); got != want {
			t.Fatalf("KindName(%v): expected %q, got %q", err, want, got)
		}
	}
}
