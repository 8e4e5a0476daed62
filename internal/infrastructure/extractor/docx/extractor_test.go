package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const sampleDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Employment</w:t></w:r><w:r><w:t xml:space="preserve"> Contract</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Party A</w:t><w:tab/><w:t>Party B</w:t></w:r></w:p>
  </w:body>
</w:document>`

func packageWith(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractParagraphs(t *testing.T) {
	text, err := NewExtractor().Extract(context.Background(), packageWith(t, documentPart, sampleDocument))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "Employment Contract\nParty A\tParty B"
	if text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
}

func TestExtractMissingDocumentPart(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), packageWith(t, "word/styles.xml", "<styles/>"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractNotAZip(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte("plain"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
