package sheetstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 内存区域存储
type MemoryStore struct {
	mu     sync.RWMutex
	sheets map[string]*memorySheet
}

type memorySheet struct {
	order []string
	tabs  map[string]Matrix
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sheets: make(map[string]*memorySheet),
	}
}

// SetTab 设置标签页内容（不存在则创建）
func (s *MemoryStore) SetTab(spreadsheetID, tab string, rows Matrix) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.sheets[spreadsheetID]
	if !ok {
		sh = &memorySheet{tabs: make(map[string]Matrix)}
		s.sheets[spreadsheetID] = sh
	}
	if _, exists := sh.tabs[tab]; !exists {
		sh.order = append(sh.order, tab)
	}
	sh.tabs[tab] = copyMatrix(rows)
}

// Tab 获取标签页内容副本
func (s *MemoryStore) Tab(spreadsheetID, tab string) (Matrix, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.sheets[spreadsheetID]
	if !ok {
		return nil, false
	}
	rows, ok := sh.tabs[tab]
	if !ok {
		return nil, false
	}
	return copyMatrix(rows), true
}

// ReadRange 读取区域
func (s *MemoryStore) ReadRange(_ context.Context, ref RangeRef) (Matrix, error) {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, tab, err := s.lookupLocked(ref)
	if err != nil {
		return nil, err
	}
	return crop(sh.tabs[tab], sp), nil
}

// AppendRow 在区域末尾追加一行
func (s *MemoryStore) AppendRow(_ context.Context, ref RangeRef, row []string) error {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, tab, err := s.lookupLocked(ref)
	if err != nil {
		return err
	}
	grid := sh.tabs[tab]
	sh.tabs[tab] = writeAt(grid, sp.startCol(), nextAppendRow(grid, sp), Matrix{append([]string(nil), row...)})
	return nil
}

// WriteRange 从区域左上角开始写入
func (s *MemoryStore) WriteRange(_ context.Context, ref RangeRef, values Matrix) error {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, tab, err := s.lookupLocked(ref)
	if err != nil {
		return err
	}
	sh.tabs[tab] = writeAt(sh.tabs[tab], sp.startCol(), sp.startRow(), values)
	return nil
}

// ClearRange 清空区域
func (s *MemoryStore) ClearRange(_ context.Context, ref RangeRef) error {
	sp, err := parseSpan(ref.Span)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, tab, err := s.lookupLocked(ref)
	if err != nil {
		return err
	}
	sh.tabs[tab] = clearSpan(sh.tabs[tab], sp)
	return nil
}

func (s *MemoryStore) lookupLocked(ref RangeRef) (*memorySheet, string, error) {
	sh, ok := s.sheets[ref.SpreadsheetID]
	if !ok {
		return nil, "", fmt.Errorf("spreadsheet not found: %s", ref.SpreadsheetID)
	}
	tab := ref.Tab
	if tab == "" {
		if len(sh.order) == 0 {
			return nil, "", fmt.Errorf("spreadsheet has no tabs: %s", ref.SpreadsheetID)
		}
		tab = sh.order[0]
	}
	if _, ok := sh.tabs[tab]; !ok {
		return nil, "", fmt.Errorf("unable to parse range: %s", ref.A1())
	}
	return sh, tab, nil
}

func copyMatrix(m Matrix) Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]string(nil), row...)
	}
	return out
}
