package remote

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type processingResponse struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message"`
	DocumentID      string                 `json:"document_id"`
	Document        *domain.Document       `json:"document"`
	Classification  *domain.Classification `json:"classification"`
	ProcessingError string                 `json:"processing_error"`
	Error           string                 `json:"error"`
}

func (r processingResponse) failureMessage() string {
	for _, msg := range []string{r.Error, r.Message} {
		if strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return "request rejected by server"
}

// outcome maps the response to a submission outcome. A rejected or incomplete
// response is an error; a failed pipeline run is a valid outcome.
func (r processingResponse) outcome(operation string) (domain.SubmissionOutcome, error) {
	if !r.Success {
		return domain.SubmissionOutcome{}, fmt.Errorf("%s: %s", operation, r.failureMessage())
	}

	out := domain.SubmissionOutcome{
		DocumentID:      r.DocumentID,
		ProcessingError: strings.TrimSpace(r.ProcessingError),
	}
	if doc := r.Document; doc != nil {
		if out.DocumentID == "" {
			out.DocumentID = doc.ID
		}
		out.Status = doc.Status
		out.DocumentType = doc.DocumentType
		out.Department = doc.Department
		out.Confidence = doc.Confidence
		out.Method = doc.ClassificationMethod
		if out.ProcessingError == "" && doc.Status == domain.StatusFailed {
			out.ProcessingError = doc.Error
		}
	}
	if cls := r.Classification; cls != nil {
		if cls.DocumentType != "" {
			out.DocumentType = cls.DocumentType
		}
		if cls.Confidence > 0 {
			out.Confidence = cls.Confidence
		}
		if cls.Method != "" {
			out.Method = cls.Method
		}
	}

	if out.ProcessingError != "" {
		out.Status = domain.StatusFailed
		return out, nil
	}
	if r.Document == nil {
		return domain.SubmissionOutcome{}, fmt.Errorf("%s: response has no document", operation)
	}
	return out, nil
}
