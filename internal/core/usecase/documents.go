package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

type DocumentQueryUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
}

func NewDocumentQueryUseCase(repo ports.DocumentRepository, storage ports.ObjectStorage) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{repo: repo, storage: storage}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("document id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *DocumentQueryUseCase) List(ctx context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error) {
	filter = normalizeFilter(filter)
	docs, total, err := uc.repo.List(ctx, filter)
	if err != nil {
		return domain.DocumentPage{}, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return domain.DocumentPage{
		Documents:  docs,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		Total:      total,
		TotalPages: (total + filter.PerPage - 1) / filter.PerPage,
	}, nil
}

// Stats summarises the document set for the dashboard.
func (uc *DocumentQueryUseCase) Stats(ctx context.Context) (domain.DocumentStats, error) {
	stats, err := uc.repo.Stats(ctx)
	if err != nil {
		return domain.DocumentStats{}, fmt.Errorf("document stats: %w", err)
	}
	if stats.Pending < 0 {
		stats.Pending = 0
	}
	if stats.Recent == nil {
		stats.Recent = []domain.Document{}
	}
	if stats.DocumentTypes == nil {
		stats.DocumentTypes = map[string]int{}
	}
	if stats.Departments == nil {
		stats.Departments = map[string]int{}
	}
	return stats, nil
}

// Delete removes the stored original first; a missing original does not block removal of the record.
func (uc *DocumentQueryUseCase) Delete(ctx context.Context, id string) error {
	doc, err := uc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.StoragePath != "" {
		if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
			return fmt.Errorf("delete stored original: %w", err)
		}
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	return nil
}

func (uc *DocumentQueryUseCase) DeleteMany(ctx context.Context, ids []string) domain.BulkResult {
	result := domain.BulkResult{}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := uc.Delete(ctx, id); err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Failed++
			result.Errors[id] = err.Error()
			continue
		}
		result.Succeeded++
	}
	return result
}

func (uc *DocumentQueryUseCase) OpenOriginal(ctx context.Context, id string) (*domain.Document, io.ReadCloser, error) {
	doc, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open stored original: %w", err)
	}
	return doc, body, nil
}

func normalizeFilter(filter domain.DocumentFilter) domain.DocumentFilter {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = defaultPerPage
	}
	if filter.PerPage > maxPerPage {
		filter.PerPage = maxPerPage
	}
	return filter
}
