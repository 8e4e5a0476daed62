package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// NotifyDepartmentUseCase announces routed documents to their department.
// Delivery is a structured log record; no mail is sent.
type NotifyDepartmentUseCase struct {
	logger *slog.Logger
}

func NewNotifyDepartmentUseCase(logger *slog.Logger) *NotifyDepartmentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyDepartmentUseCase{logger: logger}
}

func (uc *NotifyDepartmentUseCase) HandleRouted(ctx context.Context, event domain.RoutedEvent) error {
	if strings.TrimSpace(event.DocumentID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "notify department", errors.New("document id is required"))
	}
	if strings.TrimSpace(event.Routing.Department) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "notify department", errors.New("department is required"))
	}

	level := slog.LevelInfo
	if event.Routing.Priority == domain.PriorityHigh || event.Routing.NeedsReview {
		level = slog.LevelWarn
	}
	uc.logger.Log(ctx, level, "department_notification",
		"document_id", event.DocumentID,
		"filename", event.Filename,
		"document_type", event.DocumentType,
		"confidence", event.Confidence,
		"department", event.Routing.Department,
		"email", event.Routing.Email,
		"priority", string(event.Routing.Priority),
		"sensitive", event.Routing.Sensitive,
		"needs_review", event.Routing.NeedsReview,
		"reason", event.Routing.Reason,
	)
	return nil
}
