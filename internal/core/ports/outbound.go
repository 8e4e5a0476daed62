package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, int, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, result domain.ProcessingResult) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (domain.DocumentStats, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes routing events.
type MessageQueue interface {
	PublishDocumentRouted(ctx context.Context, event domain.RoutedEvent) error
	SubscribeDocumentRouted(ctx context.Context, handler func(context.Context, domain.RoutedEvent) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// DocumentClassifier classifies extracted text.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
}

// Summarizer condenses extracted text.
type Summarizer interface {
	Summarize(text string) string
}

// DocumentRouter assigns a department to a classified document.
type DocumentRouter interface {
	Route(doc *domain.Document, text string, cls domain.Classification) domain.Routing
}

// ProcessingEndpoint is the remote document processing service as seen by the uploader.
type ProcessingEndpoint interface {
	Upload(ctx context.Context, file domain.SourceFile, progress func(sent, total int64)) (domain.SubmissionOutcome, error)
	Reprocess(ctx context.Context, documentID string) (domain.SubmissionOutcome, error)
}
