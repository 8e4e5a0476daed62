package uploadqueue

import (
	"context"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending        Status = "pending"
	StatusDispatching    Status = "dispatching"
	StatusAwaitingResult Status = "awaiting_result"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// Active reports whether the item occupies a concurrency slot.
func (s Status) Active() bool {
	return s == StatusDispatching || s == StatusAwaitingResult
}

// Terminal reports whether no automatic transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrorKind distinguishes why an item failed.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindProcessing ErrorKind = "processing"
	KindCancelled  ErrorKind = "cancelled"
)

// CancelledByUser is the failure message recorded when Cancel aborts an item.
const CancelledByUser = "cancelled by user"

// ItemError is the failure attached to a failed item.
type ItemError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ItemError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Result is the outcome stored on a completed item.
type Result struct {
	DocumentID   string  `json:"document_id"`
	DocumentType string  `json:"document_type"`
	Department   string  `json:"department"`
	Confidence   float64 `json:"confidence"`
	Method       string  `json:"method"`
}

// item is the controller-owned mutable record. Only the controller touches it.
type item struct {
	id         string
	seq        uint64
	file       domain.SourceFile
	status     Status
	progress   int
	result     *Result
	err        *ItemError
	documentID string
	// reprocessOnly items carry no bytes and can only be dispatched by document id.
	reprocessOnly bool

	attempt    uint64
	attempts   int
	cancel     context.CancelFunc
	startedAt  time.Time
	enqueuedAt time.Time
	updatedAt  time.Time
}

func (it *item) view() ItemView {
	v := ItemView{
		ID:         it.id,
		Seq:        it.seq,
		Name:       it.file.Name,
		Size:       it.file.Size,
		MediaType:  it.file.MediaType,
		Status:     it.status,
		Progress:   it.progress,
		DocumentID: it.documentID,
		Attempts:   it.attempts,
		EnqueuedAt: it.enqueuedAt,
		UpdatedAt:  it.updatedAt,
	}
	if it.result != nil {
		res := *it.result
		v.Result = &res
	}
	if it.err != nil {
		e := *it.err
		v.Err = &e
	}
	return v
}

// ItemView is an immutable copy of an item handed to readers.
type ItemView struct {
	ID         string     `json:"id"`
	Seq        uint64     `json:"seq"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	MediaType  string     `json:"media_type"`
	Status     Status     `json:"status"`
	Progress   int        `json:"progress"`
	DocumentID string     `json:"document_id,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	Err        *ItemError `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Snapshot is the queue state published after every change.
type Snapshot struct {
	Version   uint64     `json:"version"`
	Limit     int        `json:"limit"`
	Items     []ItemView `json:"items"`
	Pending   int        `json:"pending"`
	Active    int        `json:"active"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	Cancelled int        `json:"cancelled"`
	Rejected  int        `json:"rejected"`
}

// Drained reports whether nothing is waiting or in flight.
func (s Snapshot) Drained() bool {
	return s.Pending == 0 && s.Active == 0
}

// Item returns the view for id, if present.
func (s Snapshot) Item(id string) (ItemView, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return ItemView{}, false
}
