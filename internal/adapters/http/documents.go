package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// multipartOverhead leaves room for part headers around a file at the size limit.
const multipartOverhead = 1 << 20

type processingResponse struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message"`
	DocumentID      string                 `json:"document_id"`
	Document        *domain.Document       `json:"document"`
	Classification  *domain.Classification `json:"classification,omitempty"`
	ProcessingError string                 `json:"processing_error,omitempty"`
}

type documentResponse struct {
	Success        bool                   `json:"success"`
	Document       *domain.Document       `json:"document"`
	Classification *domain.Classification `json:"classification,omitempty"`
}

type pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasPrev    bool `json:"has_prev"`
	HasNext    bool `json:"has_next"`
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = domain.DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.recordRejected("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
			return
		}
		rt.recordRejected("missing_file")
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	mediaType := domain.ResolveMediaType(fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	ctx, cancel := rt.processingContext(r.Context())
	defer cancel()

	started := time.Now()
	doc, err := rt.ingest.Upload(ctx, fileHeader.Filename, mediaType, fileHeader.Size, file)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			rt.recordRejected("invalid")
		}
		writeDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(metricsService, doc.MimeType, doc.Size)
	}
	rt.recordProcessed(doc, started)

	writeJSON(w, http.StatusOK, newProcessingResponse(doc, "File uploaded and processed successfully", "File uploaded but processing failed"))
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	if _, err := rt.docs.GetByID(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	ctx, cancel := rt.processingContext(r.Context())
	defer cancel()

	started := time.Now()
	doc, err := rt.processor.ProcessByID(ctx, id)
	if err != nil {
		if !domain.IsKind(err, domain.ErrProcessing) {
			writeDomainError(w, err)
			return
		}
		failed, getErr := rt.docs.GetByID(context.WithoutCancel(r.Context()), id)
		if getErr != nil {
			writeDomainError(w, getErr)
			return
		}
		if failed.Error == "" {
			failed.Error = err.Error()
		}
		doc = failed
	}
	rt.recordProcessed(doc, started)

	writeJSON(w, http.StatusOK, newProcessingResponse(doc, "Document reprocessed successfully", "Document reprocessing failed"))
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.DocumentFilter{
		Search:  strings.TrimSpace(query.Get("search")),
		Page:    queryInt(query.Get("page")),
		PerPage: queryInt(query.Get("per_page")),
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.DocumentStatus(strings.ToLower(raw))
		switch status {
		case domain.StatusUploaded, domain.StatusProcessing, domain.StatusProcessed, domain.StatusFailed:
			filter.Status = status
		default:
			writeError(w, http.StatusBadRequest, "unknown status filter: "+raw)
			return
		}
	}

	page, err := rt.docs.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"documents": page.Documents,
		"pagination": pagination{
			Page:       page.Page,
			PerPage:    page.PerPage,
			Total:      page.Total,
			TotalPages: page.TotalPages,
			HasPrev:    page.HasPrev(),
			HasNext:    page.HasNext(),
		},
	})
}

func (rt *Router) documentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.docs.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{
		Success:        true,
		Document:       doc,
		Classification: classificationOf(doc),
	})
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := rt.manager.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Document deleted successfully"})
}

func (rt *Router) deleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	result := rt.manager.DeleteMany(r.Context(), req.IDs)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": result.Failed == 0,
		"deleted": result.Succeeded,
		"failed":  result.Failed,
		"errors":  result.Errors,
	})
}

func (rt *Router) downloadDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	doc, body, err := rt.manager.OpenOriginal(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer body.Close()

	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("download_stream_failed", "document_id", id, "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (rt *Router) processingContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := rt.cfg.ProcessingTimeout()
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func newProcessingResponse(doc *domain.Document, okMessage, failedMessage string) processingResponse {
	resp := processingResponse{
		Success:        true,
		Message:        okMessage,
		DocumentID:     doc.ID,
		Document:       doc,
		Classification: classificationOf(doc),
	}
	if doc.Status == domain.StatusFailed {
		resp.Message = failedMessage
		resp.ProcessingError = doc.Error
		if resp.ProcessingError == "" {
			resp.ProcessingError = "processing failed"
		}
	}
	return resp
}

func classificationOf(doc *domain.Document) *domain.Classification {
	if doc == nil || doc.DocumentType == "" {
		return nil
	}
	return &domain.Classification{
		DocumentType: doc.DocumentType,
		Confidence:   doc.Confidence,
		Method:       doc.ClassificationMethod,
	}
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
