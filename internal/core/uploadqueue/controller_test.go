package uploadqueue

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type endpointReply struct {
	outcome domain.SubmissionOutcome
	err     error
}

type endpointCall struct {
	name       string
	documentID string
	reprocess  bool
	ctx        context.Context
	progress   func(sent, total int64)
	reply      chan endpointReply
}

func (c *endpointCall) succeed(documentID string) {
	c.reply <- endpointReply{outcome: domain.SubmissionOutcome{
		DocumentID:   documentID,
		Status:       domain.StatusProcessed,
		DocumentType: "invoice",
		Department:   "Finance",
		Confidence:   0.8,
		Method:       domain.MethodKeyword,
	}}
}

type endpointFake struct {
	calls chan *endpointCall
}

func newEndpointFake() *endpointFake {
	return &endpointFake{calls: make(chan *endpointCall, 32)}
}

func (f *endpointFake) Upload(ctx context.Context, file domain.SourceFile, progress func(sent, total int64)) (domain.SubmissionOutcome, error) {
	call := &endpointCall{name: file.Name, ctx: ctx, progress: progress, reply: make(chan endpointReply, 1)}
	f.calls <- call
	return f.await(ctx, call)
}

func (f *endpointFake) Reprocess(ctx context.Context, documentID string) (domain.SubmissionOutcome, error) {
	call := &endpointCall{documentID: documentID, reprocess: true, ctx: ctx, reply: make(chan endpointReply, 1)}
	f.calls <- call
	return f.await(ctx, call)
}

func (f *endpointFake) await(ctx context.Context, call *endpointCall) (domain.SubmissionOutcome, error) {
	select {
	case r := <-call.reply:
		return r.outcome, r.err
	case <-ctx.Done():
		return domain.SubmissionOutcome{}, ctx.Err()
	}
}

func (f *endpointFake) next(t *testing.T) *endpointCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for endpoint call")
		return nil
	}
}

func (f *endpointFake) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case call := <-f.calls:
		t.Fatalf("unexpected endpoint call for %q", call.name)
	case <-time.After(30 * time.Millisecond):
	}
}

func sourceFile(name string) domain.SourceFile {
	return domain.SourceFile{
		Name: name,
		Size: 5,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("hello")), nil
		},
	}
}

func waitForSnapshot(t *testing.T, c *Controller, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := c.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, last snapshot: %+v", snap)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// invariantWatcher checks every published snapshot.
type invariantWatcher struct {
	mu         sync.Mutex
	violations []string
}

func watchInvariants(c *Controller) *invariantWatcher {
	w := &invariantWatcher{}
	c.Subscribe(func(s Snapshot) {
		w.mu.Lock()
		defer w.mu.Unlock()
		active := 0
		for _, it := range s.Items {
			if it.Status.Active() {
				active++
			}
			if (it.Result != nil) != (it.Status == StatusCompleted) {
				w.violations = append(w.violations, "result/status mismatch for "+it.Name)
			}
			if (it.Err != nil) != (it.Status == StatusFailed) {
				w.violations = append(w.violations, "error/status mismatch for "+it.Name)
			}
		}
		if active > s.Limit || active != s.Active {
			w.violations = append(w.violations, "active count out of bounds")
		}
	})
	return w
}

func (w *invariantWatcher) check(t *testing.T) {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.violations) > 0 {
		t.Fatalf("invariant violations: %v", w.violations)
	}
}

func statusOf(t *testing.T, snap Snapshot, id string) ItemView {
	t.Helper()
	view, ok := snap.Item(id)
	if !ok {
		t.Fatalf("item %s not in snapshot", id)
	}
	return view
}

func TestEnqueueRejectsDisallowedType(t *testing.T) {
	c := New(newEndpointFake(), Options{})

	admission, err := c.Enqueue(sourceFile("setup.exe"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if admission.Skipped() != 1 || len(admission.IDs) != 0 {
		t.Fatalf("expected 1 rejection and no items, got %+v", admission)
	}
	if !domain.IsKind(admission.Rejected[0], domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input rejection, got %v", admission.Rejected[0])
	}
	snap := c.Snapshot()
	if len(snap.Items) != 0 || snap.Rejected != 1 {
		t.Fatalf("expected empty queue with 1 rejection, got %+v", snap)
	}
}

func TestEnqueueCountsValidMinusRejected(t *testing.T) {
	c := New(newEndpointFake(), Options{MaxFileSize: 10})

	big := sourceFile("big.pdf")
	big.Size = 11
	empty := sourceFile("empty.txt")
	empty.Size = 0
	noBody := sourceFile("nobody.txt")
	noBody.Open = nil

	admission, err := c.Enqueue(
		sourceFile("a.pdf"),
		sourceFile("b.docx"),
		big,
		sourceFile("virus.exe"),
		empty,
		noBody,
		sourceFile("scan.PNG"),
	)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(admission.IDs) != 3 || admission.Skipped() != 4 {
		t.Fatalf("expected 3 admitted and 4 skipped, got %d/%d", len(admission.IDs), admission.Skipped())
	}
	snap := c.Snapshot()
	if len(snap.Items) != 3 || snap.Pending != 3 {
		t.Fatalf("expected 3 pending items, got %+v", snap)
	}
	if snap.Items[2].MediaType != domain.MediaPNG {
		t.Fatalf("expected media type resolved from extension, got %q", snap.Items[2].MediaType)
	}
}

func TestStartAdmitsUpToLimitAndRefillsOnCompletion(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{Concurrency: 3})
	watcher := watchInvariants(c)

	admission, _ := c.Enqueue(sourceFile("1.pdf"), sourceFile("2.pdf"), sourceFile("3.pdf"), sourceFile("4.pdf"), sourceFile("5.pdf"))
	c.Start()

	snap := c.Snapshot()
	if snap.Active != 3 || snap.Pending != 2 {
		t.Fatalf("expected 3 active and 2 pending, got %d/%d", snap.Active, snap.Pending)
	}
	for i, id := range admission.IDs {
		want := StatusDispatching
		if i >= 3 {
			want = StatusPending
		}
		if got := statusOf(t, snap, id).Status; got != want {
			t.Fatalf("item %d: expected %s, got %s", i, want, got)
		}
	}

	calls := map[string]*endpointCall{}
	for i := 0; i < 3; i++ {
		call := endpoint.next(t)
		calls[call.name] = call
	}
	endpoint.expectNoCall(t)

	calls["2.pdf"].succeed("doc-2")
	snap = waitForSnapshot(t, c, func(s Snapshot) bool { return s.Completed == 1 })
	if snap.Active != 3 || snap.Pending != 1 {
		t.Fatalf("expected exactly one pending admitted, got active=%d pending=%d", snap.Active, snap.Pending)
	}
	if got := statusOf(t, snap, admission.IDs[3]).Status; got != StatusDispatching {
		t.Fatalf("expected 4th item dispatching, got %s", got)
	}
	if got := statusOf(t, snap, admission.IDs[4]).Status; got != StatusPending {
		t.Fatalf("expected 5th item still pending, got %s", got)
	}
	if next := endpoint.next(t); next.name != "4.pdf" {
		t.Fatalf("expected FIFO dispatch of 4.pdf, got %s", next.name)
	}

	done := statusOf(t, snap, admission.IDs[1])
	if done.Result == nil || done.Result.DocumentID != "doc-2" || done.Result.Department != "Finance" {
		t.Fatalf("unexpected result: %+v", done.Result)
	}
	c.Close()
	watcher.check(t)
}

func TestDispatchOrderIsFIFO(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{Concurrency: 1})
	c.Enqueue(sourceFile("a.txt"), sourceFile("b.txt"), sourceFile("c.txt"))
	c.Start()

	for _, want := range []string{"a.txt", "b.txt", "c.txt"} {
		call := endpoint.next(t)
		if call.name != want {
			t.Fatalf("expected dispatch of %s, got %s", want, call.name)
		}
		call.succeed("doc-" + want)
	}
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if snap := c.Snapshot(); snap.Completed != 3 {
		t.Fatalf("expected 3 completed, got %+v", snap)
	}
}

func TestTransportErrorFailsItemAndContinues(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{Concurrency: 1})
	admission, _ := c.Enqueue(sourceFile("a.txt"), sourceFile("b.txt"))
	c.Start()

	endpoint.next(t).reply <- endpointReply{err: errors.New("processing endpoint status: 502 Bad Gateway")}
	endpoint.next(t).succeed("doc-b")
	c.Wait(context.Background())

	snap := c.Snapshot()
	failed := statusOf(t, snap, admission.IDs[0])
	if failed.Status != StatusFailed || failed.Err == nil || failed.Err.Kind != KindTransport {
		t.Fatalf("expected transport failure, got %+v", failed)
	}
	if !strings.Contains(failed.Err.Message, "502") {
		t.Fatalf("expected status in error message, got %q", failed.Err.Message)
	}
	if failed.Result != nil || failed.DocumentID != "" {
		t.Fatalf("transport failure must not carry result or document id: %+v", failed)
	}
	if statusOf(t, snap, admission.IDs[1]).Status != StatusCompleted {
		t.Fatalf("expected queue to continue after failure")
	}
}

func TestProcessingFailureRetainsDocumentID(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{})
	admission, _ := c.Enqueue(sourceFile("scan.png"))
	c.Start()

	endpoint.next(t).reply <- endpointReply{outcome: domain.SubmissionOutcome{
		DocumentID:      "doc-7",
		Status:          domain.StatusFailed,
		ProcessingError: "ocr timeout",
	}}
	c.Wait(context.Background())

	item := statusOf(t, c.Snapshot(), admission.IDs[0])
	if item.Status != StatusFailed || item.Err == nil {
		t.Fatalf("expected failed item, got %+v", item)
	}
	if item.Err.Message != "ocr timeout" || item.Err.Kind != KindProcessing {
		t.Fatalf("expected processing error 'ocr timeout', got %+v", item.Err)
	}
	if item.DocumentID != "doc-7" {
		t.Fatalf("expected document id retained, got %q", item.DocumentID)
	}
}

func TestRetryWithDocumentIDReprocessesInsteadOfUpload(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{})
	admission, _ := c.Enqueue(sourceFile("scan.png"))
	c.Start()

	endpoint.next(t).reply <- endpointReply{outcome: domain.SubmissionOutcome{
		DocumentID:      "doc-7",
		Status:          domain.StatusFailed,
		ProcessingError: "ocr timeout",
	}}
	c.Wait(context.Background())

	if err := c.Retry(admission.IDs[0]); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	call := endpoint.next(t)
	if !call.reprocess || call.documentID != "doc-7" {
		t.Fatalf("expected reprocess of doc-7, got %+v", call)
	}
	call.succeed("doc-7")
	c.Wait(context.Background())

	item := statusOf(t, c.Snapshot(), admission.IDs[0])
	if item.Status != StatusCompleted || item.Err != nil || item.Attempts != 2 {
		t.Fatalf("expected completed on second attempt, got %+v", item)
	}
}

func TestRetryReuploadsWhenConfigured(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{ReuploadOnRetry: true})
	admission, _ := c.Enqueue(sourceFile("scan.png"))
	c.Start()

	endpoint.next(t).reply <- endpointReply{outcome: domain.SubmissionOutcome{DocumentID: "doc-7", Status: domain.StatusFailed}}
	c.Wait(context.Background())

	c.Retry(admission.IDs[0])
	call := endpoint.next(t)
	if call.reprocess || call.name != "scan.png" {
		t.Fatalf("expected re-upload of scan.png, got %+v", call)
	}
	call.succeed("doc-8")
	c.Wait(context.Background())
}

func TestRetryRejectsNonFailedItems(t *testing.T) {
	c := New(newEndpointFake(), Options{})
	admission, _ := c.Enqueue(sourceFile("a.txt"))

	err := c.Retry(admission.IDs[0])
	if !errors.Is(err, ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed, got %v", err)
	}
	if err := c.Retry("missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestCancelFreesSlotInSameTick(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{Concurrency: 2})
	watcher := watchInvariants(c)
	admission, _ := c.Enqueue(sourceFile("a.txt"), sourceFile("b.txt"), sourceFile("c.txt"))
	c.Start()

	first := endpoint.next(t)
	endpoint.next(t)

	before := c.Snapshot()
	if err := c.Cancel(admission.IDs[0]); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	after := c.Snapshot()

	cancelled := statusOf(t, after, admission.IDs[0])
	if cancelled.Status != StatusFailed || cancelled.Err == nil || cancelled.Err.Kind != KindCancelled {
		t.Fatalf("expected cancelled failure, got %+v", cancelled)
	}
	if cancelled.Err.Message != CancelledByUser {
		t.Fatalf("expected %q, got %q", CancelledByUser, cancelled.Err.Message)
	}
	if got := statusOf(t, after, admission.IDs[2]).Status; got != StatusDispatching {
		t.Fatalf("expected next pending admitted immediately, got %s", got)
	}
	if statusOf(t, after, admission.IDs[1]).Status != statusOf(t, before, admission.IDs[1]).Status {
		t.Fatalf("cancel must not affect other items")
	}

	select {
	case <-first.ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected in-flight context to be cancelled")
	}
	if next := endpoint.next(t); next.name != "c.txt" {
		t.Fatalf("expected c.txt dispatched, got %s", next.name)
	}
	// A late reply from the aborted call is ignored.
	first.succeed("late")
	time.Sleep(20 * time.Millisecond)
	if got := statusOf(t, c.Snapshot(), admission.IDs[0]).Status; got != StatusFailed {
		t.Fatalf("late reply changed cancelled item to %s", got)
	}
	c.Close()
	watcher.check(t)
}

func TestCancelRequiresActiveItem(t *testing.T) {
	c := New(newEndpointFake(), Options{})
	admission, _ := c.Enqueue(sourceFile("a.txt"))
	if err := c.Cancel(admission.IDs[0]); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestProgressMovesToAwaitingResult(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{})
	admission, _ := c.Enqueue(sourceFile("a.pdf"))
	c.Start()

	call := endpoint.next(t)
	call.progress(50, 200)
	item := statusOf(t, c.Snapshot(), admission.IDs[0])
	if item.Status != StatusDispatching || item.Progress != 25 {
		t.Fatalf("expected dispatching at 25%%, got %s at %d", item.Status, item.Progress)
	}

	call.progress(200, 200)
	item = statusOf(t, c.Snapshot(), admission.IDs[0])
	if item.Status != StatusAwaitingResult || item.Progress != 100 {
		t.Fatalf("expected awaiting_result at 100%%, got %s at %d", item.Status, item.Progress)
	}
	if c.Snapshot().Active != 1 {
		t.Fatalf("awaiting_result must still hold a slot")
	}

	call.succeed("doc-1")
	c.Wait(context.Background())
}

func TestRemoveAndClear(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{Concurrency: 1})
	admission, _ := c.Enqueue(sourceFile("a.txt"), sourceFile("b.txt"), sourceFile("c.txt"), sourceFile("d.txt"))
	c.Start()

	if err := c.Remove(admission.IDs[0]); !errors.Is(err, ErrItemActive) {
		t.Fatalf("expected ErrItemActive for in-flight item, got %v", err)
	}
	endpoint.next(t).succeed("doc-a")
	endpoint.next(t).reply <- endpointReply{err: errors.New("connection reset")}
	call := endpoint.next(t)

	if err := c.Remove(admission.IDs[0]); err != nil {
		t.Fatalf("Remove() completed item error = %v", err)
	}

	removed := c.Clear()
	if removed != 2 {
		t.Fatalf("expected failed b and pending d cleared, got %d", removed)
	}
	snap := c.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].ID != admission.IDs[2] {
		t.Fatalf("expected only the active item to remain, got %+v", snap.Items)
	}
	call.succeed("doc-c")
	c.Wait(context.Background())
}

func TestEnqueueDocumentReprocesses(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{AutoStart: true})

	id, err := c.EnqueueDocument("doc-9", "old.pdf")
	if err != nil {
		t.Fatalf("EnqueueDocument() error = %v", err)
	}
	call := endpoint.next(t)
	if !call.reprocess || call.documentID != "doc-9" {
		t.Fatalf("expected reprocess call, got %+v", call)
	}
	call.succeed("doc-9")
	c.Wait(context.Background())
	if got := statusOf(t, c.Snapshot(), id).Status; got != StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestCloseCancelsUnfinishedItems(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{Concurrency: 1})
	admission, _ := c.Enqueue(sourceFile("a.txt"), sourceFile("b.txt"))
	c.Start()
	call := endpoint.next(t)

	c.Close()
	snap := c.Snapshot()
	if snap.Cancelled != 2 || snap.Active != 0 {
		t.Fatalf("expected both items cancelled, got %+v", snap)
	}
	for _, id := range admission.IDs {
		item := statusOf(t, snap, id)
		if item.Err != nil || item.Result != nil {
			t.Fatalf("cancelled item must carry neither error nor result: %+v", item)
		}
	}
	select {
	case <-call.ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected in-flight call aborted")
	}
	if _, err := c.Enqueue(sourceFile("c.txt")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() after Close error = %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{AutoStart: true})
	c.Enqueue(sourceFile("a.txt"))
	endpoint.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	c.Close()
}

func TestSubscribersReceiveOrderedSnapshots(t *testing.T) {
	endpoint := newEndpointFake()
	c := New(endpoint, Options{})

	var mu sync.Mutex
	var versions []uint64
	unsubscribe := c.Subscribe(func(s Snapshot) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})
	c.Enqueue(sourceFile("a.txt"))
	c.Start()
	endpoint.next(t).succeed("doc-a")
	c.Wait(context.Background())
	unsubscribe()
	c.Enqueue(sourceFile("b.txt"))

	mu.Lock()
	defer mu.Unlock()
	if len(versions) < 3 {
		t.Fatalf("expected at least 3 snapshots, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("snapshots out of order: %v", versions)
		}
	}
}
