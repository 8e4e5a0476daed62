package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	summarizer ports.Summarizer
	router     ports.DocumentRouter
	queue      ports.MessageQueue
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	summarizer ports.Summarizer,
	router ports.DocumentRouter,
	queue ports.MessageQueue,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		classifier: classifier,
		summarizer: summarizer,
		router:     router,
		queue:      queue,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) (*domain.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process document", errors.New("document id is required"))
	}
	if _, err := uc.loadDocument(ctx, documentID); err != nil {
		return nil, err
	}
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}

	doc, result, err := uc.processPipeline(ctx, documentID)
	if err == nil {
		err = uc.persistResult(ctx, documentID, result)
	}
	if err != nil {
		processErr := domain.WrapError(domain.ErrProcessing, "process document", err)
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
		}
		return nil, processErr
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusProcessed, ""); err != nil {
		return nil, fmt.Errorf("set status=processed: %w", err)
	}
	uc.applyResult(doc, result)
	uc.publishRouted(ctx, doc, result)

	return doc, nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, domain.ProcessingResult, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, domain.ProcessingResult{}, err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return nil, domain.ProcessingResult{}, err
	}

	classification, err := uc.classify(ctx, text)
	if err != nil {
		return nil, domain.ProcessingResult{}, err
	}

	result := domain.ProcessingResult{
		ExtractedText:  text,
		Summary:        uc.summarizer.Summarize(text),
		Classification: classification,
		Routing:        uc.router.Route(doc, text, classification),
	}
	return doc, result, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("no text could be extracted"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) classify(ctx context.Context, text string) (domain.Classification, error) {
	classification, err := uc.classifier.Classify(ctx, text)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classify document: %w", err)
	}
	return classification, nil
}

func (uc *ProcessDocumentUseCase) persistResult(ctx context.Context, documentID string, result domain.ProcessingResult) error {
	if err := uc.repo.SaveResult(ctx, documentID, result); err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) publishRouted(ctx context.Context, doc *domain.Document, result domain.ProcessingResult) {
	if uc.queue == nil {
		return
	}
	event := domain.RoutedEvent{
		DocumentID:   doc.ID,
		Filename:     doc.Filename,
		DocumentType: result.Classification.DocumentType,
		Confidence:   result.Classification.Confidence,
		Routing:      result.Routing,
		RoutedAt:     time.Now().UTC(),
	}
	if err := uc.queue.PublishDocumentRouted(ctx, event); err != nil {
		slog.Warn("routed_event_publish_failed", "document_id", doc.ID, "department", result.Routing.Department, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

// markFailed records the failure even when ctx already expired, so a timed
// out or aborted request never leaves the document in processing.
func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(context.WithoutCancel(ctx), documentID, domain.StatusFailed, processErr.Error())
}

func (uc *ProcessDocumentUseCase) applyResult(doc *domain.Document, result domain.ProcessingResult) {
	doc.Status = domain.StatusProcessed
	doc.Error = ""
	doc.ExtractedText = result.ExtractedText
	doc.Summary = result.Summary
	doc.DocumentType = result.Classification.DocumentType
	doc.Confidence = result.Classification.Confidence
	doc.ClassificationMethod = result.Classification.Method
	doc.Department = result.Routing.Department
	doc.Priority = result.Routing.Priority
	doc.Sensitive = result.Routing.Sensitive
	doc.NeedsReview = result.Routing.NeedsReview
	doc.UpdatedAt = time.Now().UTC()
}
