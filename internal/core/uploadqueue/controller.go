package uploadqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const DefaultConcurrency = 3

// Recorder receives queue measurements. A nil Recorder disables them.
type Recorder interface {
	ItemAdmitted()
	ItemRejected()
	ItemFinished(status Status, kind ErrorKind, elapsed time.Duration)
	ActiveItems(n int)
}

type Options struct {
	Concurrency int
	MaxFileSize int64
	// ReuploadOnRetry sends the original bytes again on retry even when the
	// server already assigned a document id.
	ReuploadOnRetry bool
	// AutoStart dispatches as soon as files are enqueued.
	AutoStart bool
	Logger    *slog.Logger
	Recorder  Recorder
}

func (o Options) normalize() Options {
	out := o
	if out.Concurrency <= 0 {
		out.Concurrency = DefaultConcurrency
	}
	if out.MaxFileSize <= 0 {
		out.MaxFileSize = domain.DefaultMaxUploadBytes
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Controller owns a bounded-concurrency queue of file submissions.
// All state lives behind mu; transport calls run in their own goroutines and
// re-enter only through finish, which admits the next pending item.
type Controller struct {
	endpoint ports.ProcessingEndpoint
	opts     Options

	mu       sync.Mutex
	items    []*item
	byID     map[string]*item
	nextSeq  uint64
	active   int
	rejected int
	started  bool
	closed   bool
	version  uint64
	idle     chan struct{}
	idleDone bool

	notifyMu    sync.Mutex
	delivered   uint64
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

func New(endpoint ports.ProcessingEndpoint, opts Options) *Controller {
	idle := make(chan struct{})
	close(idle)
	opts = opts.normalize()
	return &Controller{
		endpoint:    endpoint,
		opts:        opts,
		byID:        make(map[string]*item),
		started:     opts.AutoStart,
		idle:        idle,
		idleDone:    true,
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Enqueue validates files and appends the valid ones as pending items.
func (c *Controller) Enqueue(files ...domain.SourceFile) (Admission, error) {
	var admission Admission

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return admission, ErrClosed
	}
	now := time.Now()
	for _, file := range files {
		file.MediaType = domain.ResolveMediaType(file.Name, file.MediaType)
		if err := c.validate(file); err != nil {
			admission.Rejected = append(admission.Rejected, Rejection{Name: file.Name, Err: err})
			c.rejected++
			if c.opts.Recorder != nil {
				c.opts.Recorder.ItemRejected()
			}
			continue
		}
		it := c.appendLocked(file, now)
		admission.IDs = append(admission.IDs, it.id)
	}
	if c.started {
		c.processQueueLocked()
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	for _, rej := range admission.Rejected {
		c.opts.Logger.Warn("queue_file_rejected", "file", rej.Name, "error", rej.Err)
	}
	c.publish(snap)
	return admission, nil
}

// EnqueueDocument queues a reprocess request for a document the server already holds.
func (c *Controller) EnqueueDocument(documentID, name string) (string, error) {
	if documentID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "enqueue document", errors.New("document id is required"))
	}
	if name == "" {
		name = documentID
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	it := c.appendLocked(domain.SourceFile{Name: name}, time.Now())
	it.documentID = documentID
	it.reprocessOnly = true
	if c.started {
		c.processQueueLocked()
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
	return it.id, nil
}

func (c *Controller) validate(file domain.SourceFile) error {
	if file.Open == nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", fmt.Errorf("no content for %s", file.Name))
	}
	return domain.ValidateUpload(file.Name, file.MediaType, file.Size, c.opts.MaxFileSize)
}

func (c *Controller) appendLocked(file domain.SourceFile, now time.Time) *item {
	c.nextSeq++
	it := &item{
		id:         uuid.NewString(),
		seq:        c.nextSeq,
		file:       file,
		status:     StatusPending,
		enqueuedAt: now,
		updatedAt:  now,
	}
	c.items = append(c.items, it)
	c.byID[it.id] = it
	if c.opts.Recorder != nil {
		c.opts.Recorder.ItemAdmitted()
	}
	return it
}

// Start enables dispatching and admits pending items up to the limit.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.closed || c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.processQueueLocked()
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// Cancel aborts an in-flight item. The freed slot is refilled before Cancel returns.
// Transport teardown is asynchronous: the aborted call may still be unwinding
// after Cancel returns, so up to one extra request per cancelled slot can be
// briefly open. Its late result is ignored.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	it, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return ErrItemNotFound
	}
	if !it.status.Active() {
		c.mu.Unlock()
		return fmt.Errorf("cancel %s (%s): %w", id, it.status, ErrNotActive)
	}
	elapsed := time.Since(it.startedAt)
	c.abortLocked(it)
	c.failLocked(it, KindCancelled, CancelledByUser, elapsed)
	c.processQueueLocked()
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// Retry moves a failed item back to pending.
func (c *Controller) Retry(id string) error {
	c.mu.Lock()
	it, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return ErrItemNotFound
	}
	if it.status != StatusFailed {
		c.mu.Unlock()
		return fmt.Errorf("retry %s (%s): %w", id, it.status, ErrNotFailed)
	}
	c.transitionLocked(it, StatusPending)
	it.progress = 0
	it.err = nil
	if c.started {
		c.processQueueLocked()
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// RetryFailed retries every failed item and returns how many were reset.
func (c *Controller) RetryFailed(filter func(ItemView) bool) int {
	c.mu.Lock()
	count := 0
	for _, it := range c.items {
		if it.status != StatusFailed {
			continue
		}
		if filter != nil && !filter(it.view()) {
			continue
		}
		c.transitionLocked(it, StatusPending)
		it.progress = 0
		it.err = nil
		count++
	}
	if c.started {
		c.processQueueLocked()
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
	return count
}

// Remove deletes a pending or terminal item. Active items must be cancelled first.
func (c *Controller) Remove(id string) error {
	c.mu.Lock()
	it, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return ErrItemNotFound
	}
	if it.status.Active() {
		c.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrItemActive)
	}
	c.removeLocked(func(candidate *item) bool { return candidate == it })
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// Clear removes all pending and failed items and returns how many were removed.
func (c *Controller) Clear() int {
	c.mu.Lock()
	removed := c.removeLocked(func(it *item) bool {
		return it.status == StatusPending || it.status == StatusFailed
	})
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
	return removed
}

// Close stops admission, aborts in-flight dispatches and marks every
// unfinished item cancelled.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, it := range c.items {
		switch {
		case it.status.Active():
			elapsed := time.Since(it.startedAt)
			c.abortLocked(it)
			c.transitionLocked(it, StatusCancelled)
			if c.opts.Recorder != nil {
				c.opts.Recorder.ItemFinished(StatusCancelled, "", elapsed)
			}
		case it.status == StatusPending:
			c.transitionLocked(it, StatusCancelled)
		}
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// Snapshot returns the current queue state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive published snapshots in version order.
// fn runs synchronously on the publishing goroutine and must not call back
// into the controller. The returned function unregisters it.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.notifyMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.notifyMu.Unlock()

	return func() {
		c.notifyMu.Lock()
		delete(c.subscribers, id)
		c.notifyMu.Unlock()
	}
}

// Wait blocks until no item is pending or in flight, or ctx ends. A
// controller that was never started has nothing in flight and counts as idle.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) processQueueLocked() {
	if c.closed || !c.started {
		return
	}
	for c.active < c.opts.Concurrency {
		next := c.nextPendingLocked()
		if next == nil {
			break
		}
		c.admitLocked(next)
	}
}

func (c *Controller) nextPendingLocked() *item {
	var next *item
	for _, it := range c.items {
		if it.status != StatusPending {
			continue
		}
		if next == nil || it.seq < next.seq {
			next = it
		}
	}
	return next
}

func (c *Controller) admitLocked(it *item) {
	ctx, cancel := context.WithCancel(context.Background())
	it.attempt++
	it.attempts++
	it.cancel = cancel
	it.progress = 0
	it.startedAt = time.Now()
	c.transitionLocked(it, StatusDispatching)

	reprocess := it.reprocessOnly || (it.documentID != "" && !c.opts.ReuploadOnRetry)
	go c.dispatch(ctx, it.id, it.attempt, it.file, it.documentID, reprocess)
}

func (c *Controller) dispatch(ctx context.Context, id string, attempt uint64, file domain.SourceFile, documentID string, reprocess bool) {
	var (
		outcome domain.SubmissionOutcome
		err     error
	)
	if reprocess {
		outcome, err = c.endpoint.Reprocess(ctx, documentID)
	} else {
		outcome, err = c.endpoint.Upload(ctx, file, func(sent, total int64) {
			c.progress(id, attempt, sent, total)
		})
	}
	c.finish(id, attempt, outcome, err)
}

func (c *Controller) progress(id string, attempt uint64, sent, total int64) {
	c.mu.Lock()
	it, ok := c.byID[id]
	if !ok || it.attempt != attempt || it.status != StatusDispatching {
		c.mu.Unlock()
		return
	}
	if total <= 0 {
		c.mu.Unlock()
		return
	}
	done := sent >= total
	pct := 100
	if !done {
		pct = int(sent * 100 / total)
	}
	if pct == it.progress && !done {
		c.mu.Unlock()
		return
	}
	it.progress = pct
	it.updatedAt = time.Now()
	if done {
		c.transitionLocked(it, StatusAwaitingResult)
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
}

func (c *Controller) finish(id string, attempt uint64, outcome domain.SubmissionOutcome, err error) {
	c.mu.Lock()
	it, ok := c.byID[id]
	if !ok || it.attempt != attempt || !it.status.Active() {
		// Cancelled or closed while the call was in flight.
		c.mu.Unlock()
		return
	}
	elapsed := time.Since(it.startedAt)
	c.releaseLocked(it)

	switch {
	case err != nil:
		c.failLocked(it, KindTransport, err.Error(), elapsed)
	case outcome.Processed():
		it.documentID = outcome.DocumentID
		it.result = &Result{
			DocumentID:   outcome.DocumentID,
			DocumentType: outcome.DocumentType,
			Department:   outcome.Department,
			Confidence:   outcome.Confidence,
			Method:       string(outcome.Method),
		}
		it.progress = 100
		c.transitionLocked(it, StatusCompleted)
		if c.opts.Recorder != nil {
			c.opts.Recorder.ItemFinished(StatusCompleted, "", elapsed)
		}
	default:
		if outcome.DocumentID != "" {
			it.documentID = outcome.DocumentID
		}
		msg := outcome.ProcessingError
		if msg == "" {
			msg = "document processing failed"
		}
		c.failLocked(it, KindProcessing, msg, elapsed)
	}

	c.processQueueLocked()
	snap := c.commitLocked()
	c.mu.Unlock()

	c.publish(snap)
}

func (c *Controller) abortLocked(it *item) {
	if it.cancel != nil {
		it.cancel()
	}
	c.releaseLocked(it)
}

func (c *Controller) releaseLocked(it *item) {
	it.cancel = nil
}

func (c *Controller) failLocked(it *item, kind ErrorKind, msg string, elapsed time.Duration) {
	it.err = &ItemError{Kind: kind, Message: msg}
	it.result = nil
	c.transitionLocked(it, StatusFailed)
	if c.opts.Recorder != nil {
		c.opts.Recorder.ItemFinished(StatusFailed, kind, elapsed)
	}
}

func (c *Controller) transitionLocked(it *item, to Status) {
	from := it.status
	if from.Active() && !to.Active() {
		c.active--
	}
	if !from.Active() && to.Active() {
		c.active++
	}
	if to != StatusCompleted {
		it.result = nil
	}
	if to != StatusFailed {
		it.err = nil
	}
	it.status = to
	it.updatedAt = time.Now()
	if c.opts.Recorder != nil && from.Active() != to.Active() {
		c.opts.Recorder.ActiveItems(c.active)
	}
	c.opts.Logger.Debug("queue_item_transition",
		"item_id", it.id,
		"file", it.file.Name,
		"from", string(from),
		"to", string(to),
		"attempt", it.attempts,
	)
}

func (c *Controller) removeLocked(match func(*item) bool) int {
	kept := c.items[:0]
	removed := 0
	for _, it := range c.items {
		if match(it) {
			delete(c.byID, it.id)
			removed++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(c.items); i++ {
		c.items[i] = nil
	}
	c.items = kept
	return removed
}

// commitLocked bumps the version, refreshes the idle signal and returns the
// snapshot to publish once the lock is released.
func (c *Controller) commitLocked() Snapshot {
	c.version++
	snap := c.snapshotLocked()

	drained := snap.Drained() || (!c.started && snap.Active == 0)
	if c.closed {
		drained = true
	}
	switch {
	case drained && !c.idleDone:
		close(c.idle)
		c.idleDone = true
	case !drained && c.idleDone:
		c.idle = make(chan struct{})
		c.idleDone = false
	}
	return snap
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:  c.version,
		Limit:    c.opts.Concurrency,
		Items:    make([]ItemView, 0, len(c.items)),
		Active:   c.active,
		Rejected: c.rejected,
	}
	for _, it := range c.items {
		snap.Items = append(snap.Items, it.view())
		switch it.status {
		case StatusPending:
			snap.Pending++
		case StatusCompleted:
			snap.Completed++
		case StatusFailed:
			snap.Failed++
		case StatusCancelled:
			snap.Cancelled++
		}
	}
	return snap
}

func (c *Controller) publish(snap Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version <= c.delivered {
		return
	}
	c.delivered = snap.Version
	for _, fn := range c.subscribers {
		fn(snap)
	}
}
