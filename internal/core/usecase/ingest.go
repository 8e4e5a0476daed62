package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	processor ports.DocumentProcessor
	maxSize   int64
	allowed   map[string]struct{}
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	processor ports.DocumentProcessor,
	maxSize int64,
	allowedExtensions []string,
) *IngestDocumentUseCase {
	var allowed map[string]struct{}
	if len(allowedExtensions) > 0 {
		allowed = make(map[string]struct{}, len(allowedExtensions))
		for _, ext := range allowedExtensions {
			allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
		}
	}
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		processor: processor,
		maxSize:   maxSize,
		allowed:   allowed,
	}
}

// Upload stores the file, records it and runs the pipeline synchronously.
// A pipeline failure is returned on the document with status failed.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	size int64,
	body io.Reader,
) (*domain.Document, error) {
	if err := uc.validate(filename, mimeType, size); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body, size); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filepath.Base(filename),
		MimeType:    domain.ResolveMediaType(filename, mimeType),
		Size:        size,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(ctx, storageKey); delErr != nil {
			slog.Warn("orphaned_upload_cleanup_failed", "storage_key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	processed, err := uc.processor.ProcessByID(ctx, id)
	if err == nil {
		return processed, nil
	}
	if !domain.IsKind(err, domain.ErrProcessing) {
		return nil, err
	}

	failed, getErr := uc.repo.GetByID(context.WithoutCancel(ctx), id)
	if getErr != nil {
		doc.Status = domain.StatusFailed
		doc.Error = err.Error()
		return doc, nil
	}
	if failed.Error == "" {
		failed.Error = err.Error()
	}
	return failed, nil
}

func (uc *IngestDocumentUseCase) validate(filename, mimeType string, size int64) error {
	if err := domain.ValidateUpload(filename, mimeType, size, uc.maxSize); err != nil {
		return err
	}
	if uc.allowed == nil {
		return nil
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := uc.allowed[ext]; !ok {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("file type not allowed: "+filepath.Base(filename)))
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
