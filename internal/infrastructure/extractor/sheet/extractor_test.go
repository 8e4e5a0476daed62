package sheet

import (
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_ = f.SetCellValue("Sheet1", "A1", "Invoice")
	_ = f.SetCellValue("Sheet1", "B1", "INV-7")
	_ = f.SetCellValue("Sheet1", "A3", "Total")
	_ = f.SetCellValue("Sheet1", "B3", 1200)
	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}
	_ = f.SetCellValue("Notes", "A1", "payment due")

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf.Bytes()
}

func TestExtractAllSheets(t *testing.T) {
	text, err := NewExtractor().Extract(context.Background(), workbook(t))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "Invoice INV-7\nTotal 1200\npayment due"
	if text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte("not a workbook"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
