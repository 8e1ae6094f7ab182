package sheetstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"
)

// WorkbookStore 以目录下的 xlsx 文件充当表格：<spreadsheetID>.xlsx
type WorkbookStore struct {
	dir string
	mu  sync.Mutex
}

// NewWorkbookStore 创建工作簿目录存储
func NewWorkbookStore(dir string) (*WorkbookStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workbook directory: %w", err)
	}
	return &WorkbookStore{dir: dir}, nil
}

// Path 表格对应的文件路径
func (s *WorkbookStore) Path(spreadsheetID string) string {
	return filepath.Join(s.dir, spreadsheetID+".xlsx")
}

// ReadRange 读取区域
func (s *WorkbookStore) ReadRange(_ context.Context, ref RangeRef) (Matrix, error) {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, tab, err := s.open(ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(tab)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return crop(rows, sp), nil
}

// AppendRow 在区域末尾追加一行
func (s *WorkbookStore) AppendRow(_ context.Context, ref RangeRef, row []string) error {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return err
	}
	return s.update(ref, func(f *excelize.File, tab string) error {
		rows, err := f.GetRows(tab)
		if err != nil {
			return err
		}
		return setCells(f, tab, sp.startCol(), nextAppendRow(rows, sp), Matrix{row})
	})
}

// WriteRange 从区域左上角开始写入
func (s *WorkbookStore) WriteRange(_ context.Context, ref RangeRef, values Matrix) error {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return err
	}
	return s.update(ref, func(f *excelize.File, tab string) error {
		return setCells(f, tab, sp.startCol(), sp.startRow(), values)
	})
}

// ClearRange 清空区域
func (s *WorkbookStore) ClearRange(_ context.Context, ref RangeRef) error {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return err
	}
	return s.update(ref, func(f *excelize.File, tab string) error {
		rows, err := f.GetRows(tab)
		if err != nil {
			return err
		}
		for i, row := range rows {
			if !sp.containsRow(i + 1) {
				continue
			}
			for j := range row {
				if !sp.containsCol(j + 1) {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(j+1, i+1)
				if err != nil {
					return err
				}
				if err := f.SetCellStr(tab, cell, ""); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *WorkbookStore) update(ref RangeRef, fn func(f *excelize.File, tab string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, tab, err := s.open(ref)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fn(f, tab); err != nil {
		return fmt.Errorf("failed to update %s: %w", ref, err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.Path(ref.SpreadsheetID), err)
	}
	return nil
}

func (s *WorkbookStore) open(ref RangeRef) (*excelize.File, string, error) {
	f, err := excelize.OpenFile(s.Path(ref.SpreadsheetID))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open spreadsheet %s: %w", ref.SpreadsheetID, err)
	}
	tab := ref.Tab
	if tab == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			f.Close()
			return nil, "", fmt.Errorf("spreadsheet has no tabs: %s", ref.SpreadsheetID)
		}
		tab = list[0]
	}
	if idx, err := f.GetSheetIndex(tab); err != nil || idx < 0 {
		f.Close()
		return nil, "", fmt.Errorf("unable to parse range: %s", ref.A1())
	}
	return f, tab, nil
}

func setCells(f *excelize.File, tab string, col, row int, values Matrix) error {
	for i, vals := range values {
		for j, v := range vals {
			cell, err := excelize.CoordinatesToCellName(col+j, row+i)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(tab, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
