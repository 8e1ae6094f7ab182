package sheetstore

import (
	"context"
	"testing"

	"github.com/xuri/excelize/v2"
)

// createWorkbook 在存储目录下新建表格文件，tabs 按给定顺序创建
func createWorkbook(t *testing.T, s *WorkbookStore, spreadsheetID string, tabs []string, contents map[string]Matrix) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tabs[0]); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	for _, tab := range tabs[1:] {
		if _, err := f.NewSheet(tab); err != nil {
			t.Fatalf("NewSheet: %v", err)
		}
	}
	for tab, rows := range contents {
		if err := setCells(f, tab, 1, 1, rows); err != nil {
			t.Fatalf("setCells: %v", err)
		}
	}
	if err := f.SaveAs(s.Path(spreadsheetID)); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
}

func TestWorkbookStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewWorkbookStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkbookStore: %v", err)
	}
	createWorkbook(t, s, "pme", []string{"MAIN", "PROD"}, map[string]Matrix{
		"MAIN": {{"REID", "GROSS_RCPTS"}, {"P1", "$1,000"}},
		"PROD": {{"old1"}, {"old2"}, {"old3"}, {"old4"}},
	})

	ctx := context.Background()
	rows, err := s.ReadRange(ctx, Ref("pme", "MAIN", "A:ZZ"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "$1,000" {
		t.Fatalf("rows=%v", rows)
	}

	first, err := s.ReadRange(ctx, Ref("pme", "", "1:1"))
	if err != nil {
		t.Fatalf("read first tab: %v", err)
	}
	if first.Cell(0, 0) != "REID" {
		t.Fatalf("first tab header=%v", first)
	}

	if err := s.AppendRow(ctx, Ref("pme", "MAIN", "A:ZZ"), []string{"P2", "500"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows, _ = s.ReadRange(ctx, Ref("pme", "MAIN", "A:ZZ"))
	if len(rows) != 3 || rows[2][0] != "P2" {
		t.Fatalf("after append rows=%v", rows)
	}
}

func TestWorkbookStoreClearThenWriteIsFullOverwrite(t *testing.T) {
	t.Parallel()

	s, err := NewWorkbookStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkbookStore: %v", err)
	}
	createWorkbook(t, s, "pme", []string{"PROD"}, map[string]Matrix{
		"PROD": {{"a", "b", "c"}, {"d", "e", "f"}, {"g", "h", "i"}},
	})

	ctx := context.Background()
	target := Ref("pme", "PROD", "A:ZZ")
	if err := s.ClearRange(ctx, target); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.WriteRange(ctx, target.WithSpan("A1"), Matrix{{"x"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := s.ReadRange(ctx, target)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != 1 || rows[0][0] != "x" {
		t.Fatalf("expected exactly the written content, got %v", rows)
	}
}

func TestWorkbookStoreMissingSpreadsheet(t *testing.T) {
	t.Parallel()

	s, err := NewWorkbookStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkbookStore: %v", err)
	}
	if _, err := s.ReadRange(context.Background(), Ref("nope", "MAIN", "A:Z")); err == nil {
		t.Fatalf("expected error for missing workbook")
	}
}
