package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

type ClassificationMethod string

const (
	MethodGemini  ClassificationMethod = "gemini"
	MethodKeyword ClassificationMethod = "keyword"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Document struct {
	ID                   string               `json:"id"`
	Filename             string               `json:"filename"`
	MimeType             string               `json:"mime_type"`
	Size                 int64                `json:"file_size"`
	StoragePath          string               `json:"-"`
	Status               DocumentStatus       `json:"status"`
	ExtractedText        string               `json:"extracted_text,omitempty"`
	Summary              string               `json:"summary,omitempty"`
	DocumentType         string               `json:"document_type,omitempty"`
	Confidence           float64              `json:"confidence_score,omitempty"`
	ClassificationMethod ClassificationMethod `json:"classification_method,omitempty"`
	Department           string               `json:"department,omitempty"`
	Priority             Priority             `json:"priority,omitempty"`
	Sensitive            bool                 `json:"sensitive"`
	NeedsReview          bool                 `json:"needs_review"`
	Error                string               `json:"error,omitempty"`
	CreatedAt            time.Time            `json:"upload_date"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

type Classification struct {
	DocumentType string               `json:"document_type"`
	Confidence   float64              `json:"confidence"`
	Method       ClassificationMethod `json:"method"`
	Reasoning    string               `json:"reasoning,omitempty"`
}

// ProcessingResult is everything the pipeline derives from a document's text.
type ProcessingResult struct {
	ExtractedText  string
	Summary        string
	Classification Classification
	Routing        Routing
}

// DocumentFilter narrows a listing. Search matches a filename substring, case-insensitive.
type DocumentFilter struct {
	Status  DocumentStatus
	Search  string
	Page    int
	PerPage int
}

type DocumentPage struct {
	Documents  []Document `json:"documents"`
	Page       int        `json:"current_page"`
	PerPage    int        `json:"per_page"`
	Total      int        `json:"total"`
	TotalPages int        `json:"total_pages"`
}

func (p DocumentPage) HasPrev() bool { return p.Page > 1 }
func (p DocumentPage) HasNext() bool { return p.Page < p.TotalPages }

// DocumentStats is the dashboard summary. Pending counts every document not yet processed.
type DocumentStats struct {
	Total         int            `json:"total_documents"`
	Processed     int            `json:"processed_documents"`
	Pending       int            `json:"pending_documents"`
	Recent        []Document     `json:"recent_documents"`
	DocumentTypes map[string]int `json:"document_types"`
	Departments   map[string]int `json:"departments"`
}

// BulkResult reports partial success of a multi-document operation.
type BulkResult struct {
	Succeeded int               `json:"deleted"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}
