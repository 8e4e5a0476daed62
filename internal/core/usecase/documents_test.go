package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type documentStorageFake struct {
	files     map[string]string
	deleteErr error
	deleted   []string
}

func (f *documentStorageFake) Save(context.Context, string, io.Reader, int64) error {
	return errors.New("not implemented")
}

func (f *documentStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "open", errors.New(key))
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *documentStorageFake) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	delete(f.files, key)
	return nil
}

func TestDocumentListPaginates(t *testing.T) {
	docs := make([]domain.Document, 0, 25)
	for i := 0; i < 25; i++ {
		doc := uploadedDoc(string(rune('a'+i)) + "-doc")
		doc.Status = domain.StatusProcessed
		docs = append(docs, doc)
	}
	uc := NewDocumentQueryUseCase(newProcessRepoFake(docs...), &documentStorageFake{})

	page, err := uc.List(context.Background(), domain.DocumentFilter{Page: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 25 || page.TotalPages != 3 || page.PerPage != defaultPerPage || len(page.Documents) != 5 {
		t.Fatalf("unexpected page: total=%d pages=%d per_page=%d len=%d", page.Total, page.TotalPages, page.PerPage, len(page.Documents))
	}
	if !page.HasPrev() || page.HasNext() {
		t.Fatalf("expected last page navigation, got prev=%v next=%v", page.HasPrev(), page.HasNext())
	}
}

func TestDocumentListNormalizesFilter(t *testing.T) {
	uc := NewDocumentQueryUseCase(newProcessRepoFake(), &documentStorageFake{})

	page, err := uc.List(context.Background(), domain.DocumentFilter{Page: -2, PerPage: 500})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Page != 1 || page.PerPage != maxPerPage || page.TotalPages != 0 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Documents == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}

func TestDocumentListFiltersByStatus(t *testing.T) {
	failed := uploadedDoc("doc-2")
	failed.Status = domain.StatusFailed
	uc := NewDocumentQueryUseCase(newProcessRepoFake(uploadedDoc("doc-1"), failed), &documentStorageFake{})

	page, err := uc.List(context.Background(), domain.DocumentFilter{Status: domain.StatusFailed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 || page.Documents[0].ID != "doc-2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestDocumentGetByIDRequiresID(t *testing.T) {
	uc := NewDocumentQueryUseCase(newProcessRepoFake(), &documentStorageFake{})
	if _, err := uc.GetByID(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDocumentDeleteRemovesOriginalAndRecord(t *testing.T) {
	doc := uploadedDoc("doc-1")
	repo := newProcessRepoFake(doc)
	storage := &documentStorageFake{files: map[string]string{doc.StoragePath: "body"}}
	uc := NewDocumentQueryUseCase(repo, storage)

	if err := uc.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != doc.StoragePath {
		t.Fatalf("unexpected storage deletes: %v", storage.deleted)
	}
	if _, err := repo.GetByID(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected record removed, got %v", err)
	}
}

func TestDocumentDeleteStorageFailureKeepsRecord(t *testing.T) {
	repo := newProcessRepoFake(uploadedDoc("doc-1"))
	uc := NewDocumentQueryUseCase(repo, &documentStorageFake{deleteErr: errors.New("permission denied")})

	if err := uc.Delete(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := repo.GetByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("expected record to remain, got %v", err)
	}
}

func TestDocumentDeleteManyReportsPartialSuccess(t *testing.T) {
	repo := newProcessRepoFake(uploadedDoc("doc-1"), uploadedDoc("doc-2"))
	uc := NewDocumentQueryUseCase(repo, &documentStorageFake{files: map[string]string{}})

	result := uc.DeleteMany(context.Background(), []string{"doc-1", "missing", "doc-2", "doc-1"})
	if result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok := result.Errors["missing"]; !ok {
		t.Fatalf("expected error for missing id, got %+v", result.Errors)
	}
}

func TestDocumentOpenOriginal(t *testing.T) {
	doc := uploadedDoc("doc-1")
	uc := NewDocumentQueryUseCase(newProcessRepoFake(doc), &documentStorageFake{files: map[string]string{doc.StoragePath: "original bytes"}})

	got, body, err := uc.OpenOriginal(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("OpenOriginal() error = %v", err)
	}
	defer body.Close()
	raw, _ := io.ReadAll(body)
	if got.Filename != "invoice.txt" || string(raw) != "original bytes" {
		t.Fatalf("unexpected original: %q %q", got.Filename, raw)
	}
}

func TestNotifyDepartmentLogsRoutedDocument(t *testing.T) {
	var buf bytes.Buffer
	uc := NewNotifyDepartmentUseCase(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := uc.HandleRouted(context.Background(), domain.RoutedEvent{
		DocumentID:   "doc-1",
		Filename:     "invoice.txt",
		DocumentType: "invoice",
		Routing:      financeRouting(),
	})
	if err != nil {
		t.Fatalf("HandleRouted() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"msg":"department_notification"`, `"department":"Finance"`, `"level":"WARN"`, `"email":"finance@example.com"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output, got %s", want, out)
		}
	}
}

func TestNotifyDepartmentRejectsIncompleteEvent(t *testing.T) {
	uc := NewNotifyDepartmentUseCase(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := uc.HandleRouted(context.Background(), domain.RoutedEvent{DocumentID: "doc-1"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDocumentListSearchesFilename(t *testing.T) {
	invoice := uploadedDoc("doc-1")
	contract := uploadedDoc("doc-2")
	contract.Filename = "Supplier_Contract.pdf"
	uc := NewDocumentQueryUseCase(newProcessRepoFake(invoice, contract), &documentStorageFake{})

	page, err := uc.List(context.Background(), domain.DocumentFilter{Search: "  contract "})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 || len(page.Documents) != 1 || page.Documents[0].ID != "doc-2" {
		t.Fatalf("unexpected search result: %+v", page)
	}
}

func TestDocumentStats(t *testing.T) {
	processed := uploadedDoc("doc-1")
	processed.Status = domain.StatusProcessed
	processed.DocumentType = "invoice"
	processed.Department = "Finance"
	pending := uploadedDoc("doc-2")
	uc := NewDocumentQueryUseCase(newProcessRepoFake(processed, pending), &documentStorageFake{})

	stats, err := uc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 2 || stats.Processed != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.DocumentTypes["invoice"] != 1 || stats.Departments["Finance"] != 1 {
		t.Fatalf("unexpected breakdown: types=%v departments=%v", stats.DocumentTypes, stats.Departments)
	}
	if stats.Recent == nil {
		t.Fatalf("expected empty recent slice, got nil")
	}
}

func TestDocumentStatsRepositoryFailure(t *testing.T) {
	repo := newProcessRepoFake()
	repo.statsErr = errors.New("connection refused")
	uc := NewDocumentQueryUseCase(repo, &documentStorageFake{})

	if _, err := uc.Stats(context.Background()); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected repository error, got %v", err)
	}
}
