package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor/ocr"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor/sheet"
)

// Format extracts text from the raw bytes of one document format.
type Format interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Extractor loads a stored document and dispatches on its media type.
type Extractor struct {
	storage  ports.ObjectStorage
	formats  map[string]Format
	maxBytes int64
}

type Options struct {
	TesseractPath string
	MaxBytes      int64
}

func New(storage ports.ObjectStorage, opts Options) *Extractor {
	text := plaintext.NewExtractor()
	images := ocr.NewExtractor(opts.TesseractPath)
	formats := map[string]Format{
		domain.MediaText: text,
		domain.MediaCSV:  plaintext.NewCSVExtractor(),
		domain.MediaPDF:  pdftext.NewExtractor(),
		domain.MediaXLSX: sheet.NewExtractor(),
		domain.MediaDOCX: docx.NewExtractor(),
		domain.MediaPNG:  images,
		domain.MediaJPEG: images,
		domain.MediaGIF:  images,
		domain.MediaTIFF: images,
		domain.MediaBMP:  images,
		domain.MediaWebP: images,
	}
	return NewWithFormats(storage, opts.MaxBytes, formats)
}

func NewWithFormats(storage ports.ObjectStorage, maxBytes int64, formats map[string]Format) *Extractor {
	if maxBytes <= 0 {
		maxBytes = domain.DefaultMaxUploadBytes
	}
	return &Extractor{storage: storage, formats: formats, maxBytes: maxBytes}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	mediaType := domain.ResolveMediaType(doc.Filename, doc.MimeType)
	format, ok := e.formats[mediaType]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("unsupported document format: %s", describe(doc.Filename, mediaType)))
	}

	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("document exceeds %d bytes", e.maxBytes))
	}

	return format.Extract(ctx, raw)
}

func describe(filename, mediaType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	if mediaType != "" {
		return mediaType
	}
	return "unknown"
}
