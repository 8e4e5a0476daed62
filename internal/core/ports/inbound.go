package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
// A processing failure is reported on the returned document, not as an error.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, size int64, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor runs the extraction/classification/routing pipeline for a stored document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) (domain.DocumentPage, error)
	Stats(ctx context.Context) (domain.DocumentStats, error)
}

// DocumentManager covers removal and retrieval of the original upload.
type DocumentManager interface {
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) domain.BulkResult
	OpenOriginal(ctx context.Context, id string) (*domain.Document, io.ReadCloser, error)
}

// RoutedEventHandler consumes department routing events.
type RoutedEventHandler interface {
	HandleRouted(ctx context.Context, event domain.RoutedEvent) error
}
