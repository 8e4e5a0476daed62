package uploadqueue

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound = errors.New("queue item not found")
	ErrItemActive   = errors.New("queue item is in flight")
	ErrNotActive    = errors.New("queue item is not in flight")
	ErrNotFailed    = errors.New("queue item has not failed")
	ErrClosed       = errors.New("upload queue closed")
)

// Rejection records a file refused at admission. It never becomes a queue item.
type Rejection struct {
	Name string
	Err  error
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %v", r.Name, r.Err)
}

func (r Rejection) Unwrap() error { return r.Err }

// Admission is the outcome of one Enqueue batch.
type Admission struct {
	IDs      []string
	Rejected []Rejection
}

// Skipped is the number of files rejected by validation.
func (a Admission) Skipped() int { return len(a.Rejected) }
