package domain

import "time"

type Routing struct {
	DepartmentID string   `json:"department_id"`
	Department   string   `json:"department"`
	Email        string   `json:"email,omitempty"`
	Priority     Priority `json:"priority"`
	Sensitive    bool     `json:"sensitive"`
	NeedsReview  bool     `json:"needs_review"`
	Reason       string   `json:"reason"`
}

// RoutedEvent is published once a processed document has been assigned a department.
type RoutedEvent struct {
	DocumentID   string    `json:"document_id"`
	Filename     string    `json:"filename"`
	DocumentType string    `json:"document_type"`
	Confidence   float64   `json:"confidence"`
	Routing      Routing   `json:"routing"`
	RoutedAt     time.Time `json:"routed_at"`
}
