package sheetstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RangeRef 表格区域引用：(表格 ID, 标签页, 列/行范围)
type RangeRef struct {
	SpreadsheetID string
	Tab           string // 为空表示第一个标签页
	Span          string // A1 范围，如 "A:ZZ"、"1:1"、"B2"；为空表示整个标签页
}

// Ref 构造区域引用
func Ref(spreadsheetID, tab, span string) RangeRef {
	return RangeRef{SpreadsheetID: spreadsheetID, Tab: tab, Span: span}
}

var plainTabName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// A1 返回 A1 表示法，如 'To Do'!A:Z
func (r RangeRef) A1() string {
	tab := r.Tab
	if tab != "" && !plainTabName.MatchString(tab) {
		tab = "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	switch {
	case tab == "":
		return r.Span
	case r.Span == "":
		return tab
	default:
		return tab + "!" + r.Span
	}
}

func (r RangeRef) String() string {
	return r.SpreadsheetID + "/" + r.A1()
}

// WithSpan 替换范围部分
func (r RangeRef) WithSpan(span string) RangeRef {
	r.Span = span
	return r
}

// Start 区域左上角单元格（如 A:ZZ -> A1）
func (r RangeRef) Start() (string, error) {
	sp, err := parseSpan(r.Span)
	if err != nil {
		return "", err
	}
	return excelize.CoordinatesToCellName(sp.startCol(), sp.startRow())
}

// StartRow 区域起始行号（1 起）
func (r RangeRef) StartRow() int {
	sp, err := parseSpan(r.Span)
	if err != nil {
		return 1
	}
	return sp.startRow()
}

// span 解析后的区域，行列均从 1 开始，0 表示不限
type span struct {
	c1, r1, c2, r2 int
}

func (s span) startCol() int {
	if s.c1 == 0 {
		return 1
	}
	return s.c1
}

func (s span) startRow() int {
	if s.r1 == 0 {
		return 1
	}
	return s.r1
}

// containsRow 行号（1 起）是否落在区域内
func (s span) containsRow(row int) bool {
	if row < s.startRow() {
		return false
	}
	return s.r2 == 0 || row <= s.r2
}

// containsCol 列号（1 起）是否落在区域内
func (s span) containsCol(col int) bool {
	if col < s.startCol() {
		return false
	}
	return s.c2 == 0 || col <= s.c2
}

func parseSpan(raw string) (span, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return span{}, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) > 2 {
		return span{}, fmt.Errorf("invalid range %q", raw)
	}
	c1, r1, err := parsePoint(parts[0])
	if err != nil {
		return span{}, fmt.Errorf("invalid range %q: %w", raw, err)
	}
	if len(parts) == 1 {
		return span{c1: c1, r1: r1, c2: c1, r2: r1}, nil
	}
	c2, r2, err := parsePoint(parts[1])
	if err != nil {
		return span{}, fmt.Errorf("invalid range %q: %w", raw, err)
	}
	return span{c1: c1, r1: r1, c2: c2, r2: r2}, nil
}

// parsePoint 解析 "B"、"3"、"B3" 之类的端点
func parsePoint(p string) (col, row int, err error) {
	p = strings.ToUpper(strings.TrimSpace(p))
	i := 0
	for i < len(p) && p[i] >= 'A' && p[i] <= 'Z' {
		i++
	}
	letters, digits := p[:i], p[i:]
	if letters == "" && digits == "" {
		return 0, 0, fmt.Errorf("empty endpoint")
	}
	if letters != "" {
		col, err = excelize.ColumnNameToNumber(letters)
		if err != nil {
			return 0, 0, err
		}
	}
	if digits != "" {
		row, err = strconv.Atoi(digits)
		if err != nil || row < 1 {
			return 0, 0, fmt.Errorf("bad row %q", digits)
		}
	}
	return col, row, nil
}

// ColumnLetter 将 0 起的列下标转换为列字母（0 -> A, 26 -> AA）
func ColumnLetter(index int) string {
	name, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return ""
	}
	return name
}

// ColumnIndex 将列字母转换为 0 起的列下标
func ColumnIndex(letter string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.ToUpper(strings.TrimSpace(letter)))
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}
