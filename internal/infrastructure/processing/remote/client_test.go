package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func textFile(name, content string) domain.SourceFile {
	return domain.SourceFile{
		Name:      name,
		Size:      int64(len(content)),
		MediaType: domain.MediaText,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestUploadStreamsMultipartAndReportsProgress(t *testing.T) {
	var gotName, gotBody, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("read form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		gotName, gotBody, gotType = header.Filename, string(raw), header.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"success":true,"message":"File uploaded and processed successfully","document_id":"doc-1",
			"document":{"id":"doc-1","filename":"notes.txt","status":"processed","document_type":"invoice","department":"Finance","confidence_score":0.8,"classification_method":"keyword"}}`))
	}))
	defer server.Close()

	var mu sync.Mutex
	var lastSent, lastTotal int64
	client := New(server.URL, Options{Executor: testExecutor()})
	outcome, err := client.Upload(context.Background(), textFile("/tmp/notes.txt", "invoice total due"), func(sent, total int64) {
		mu.Lock()
		lastSent, lastTotal = sent, total
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if gotName != "notes.txt" || gotBody != "invoice total due" || gotType != domain.MediaText {
		t.Fatalf("unexpected multipart part: name=%q body=%q type=%q", gotName, gotBody, gotType)
	}
	if !outcome.Processed() || outcome.DocumentID != "doc-1" || outcome.Department != "Finance" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Method != domain.MethodKeyword || outcome.Confidence != 0.8 {
		t.Fatalf("unexpected classification in outcome: %+v", outcome)
	}
	mu.Lock()
	defer mu.Unlock()
	if lastSent != lastTotal || lastTotal != int64(len("invoice total due")) {
		t.Fatalf("expected final progress %d/%d, got %d/%d", lastTotal, lastTotal, lastSent, lastTotal)
	}
}

func TestUploadProcessingFailureIsOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"success":true,"message":"File uploaded but processing failed","document_id":"doc-7",
			"document":{"id":"doc-7","status":"failed"},"processing_error":"ocr timeout"}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Executor: testExecutor()})
	outcome, err := client.Upload(context.Background(), textFile("scan.txt", "x"), nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if outcome.Processed() {
		t.Fatalf("expected processing failure outcome")
	}
	if outcome.ProcessingError != "ocr timeout" || outcome.DocumentID != "doc-7" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestUploadRejectedResponseIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"File type not allowed"}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Executor: testExecutor()})
	_, err := client.Upload(context.Background(), textFile("a.txt", "x"), nil)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || !strings.Contains(err.Error(), "File type not allowed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUploadMalformedBodyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Executor: testExecutor()})
	if _, err := client.Upload(context.Background(), textFile("a.txt", "x"), nil); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestUploadHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(server.URL, Options{Executor: testExecutor()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Upload(ctx, textFile("a.txt", "x"), nil)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("upload did not return after cancel")
	}
}

func TestUploadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(server.URL, Options{Timeout: 30 * time.Millisecond, Executor: testExecutor()})
	_, err := client.Upload(context.Background(), textFile("a.txt", "x"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestReprocessRetriesTemporaryStatus(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/process/doc-7" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"message":"Document reprocessed successfully","document_id":"doc-7",
			"document":{"id":"doc-7","status":"processed","document_type":"report","department":"Analytics"},
			"classification":{"document_type":"report","confidence":0.92,"method":"gemini"}}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Executor: testExecutor()})
	outcome, err := client.Reprocess(context.Background(), "doc-7")
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if !outcome.Processed() || outcome.Method != domain.MethodGemini || outcome.Confidence != 0.92 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestReprocessMissingDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"document not found"}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Executor: testExecutor()})
	_, err := client.Reprocess(context.Background(), "gone")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDocumentDecodesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/document/doc-3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"document":{"id":"doc-3","filename":"c.pdf","status":"processed","summary":"Short."}}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Executor: testExecutor()})
	doc, err := client.Document(context.Background(), "doc-3")
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if doc.Filename != "c.pdf" || doc.Summary != "Short." || doc.Status != domain.StatusProcessed {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestClassifyProcessingError(t *testing.T) {
	if class := classifyProcessingError(&HTTPStatusError{StatusCode: http.StatusBadGateway}); !class.Retryable {
		t.Fatalf("expected 502 to be retryable")
	}
	if class := classifyProcessingError(&HTTPStatusError{StatusCode: http.StatusBadRequest}); class.Retryable || class.RecordFailure {
		t.Fatalf("expected 400 to be permanent and not recorded")
	}
	if class := classifyProcessingError(context.Canceled); class.Retryable {
		t.Fatalf("expected cancellation not retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Fatalf("expected 3s, got %s", got)
	}
	if got := parseRetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"); got != 0 {
		t.Fatalf("expected date form to be ignored, got %s", got)
	}
}
