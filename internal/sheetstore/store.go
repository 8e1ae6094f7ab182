// Package sheetstore 把电子表格当作远端的区域读写服务
package sheetstore

import "context"

// Matrix 单元格矩阵（按行）
type Matrix [][]string

// Cell 安全读取单元格，越界返回空串
func (m Matrix) Cell(row, col int) string {
	if row < 0 || row >= len(m) {
		return ""
	}
	if col < 0 || col >= len(m[row]) {
		return ""
	}
	return m[row][col]
}

// RangeStore 区域读写接口。追加为至少一次语义，不提供事务。
type RangeStore interface {
	ReadRange(ctx context.Context, ref RangeRef) (Matrix, error)
	AppendRow(ctx context.Context, ref RangeRef, row []string) error
	WriteRange(ctx context.Context, ref RangeRef, values Matrix) error
	ClearRange(ctx context.Context, ref RangeRef) error
}

// Trim 去掉行尾空单元格与末尾空行（与 Sheets values API 的返回形态一致）
func Trim(m Matrix) Matrix {
	out := make(Matrix, 0, len(m))
	for _, row := range m {
		end := len(row)
		for end > 0 && row[end-1] == "" {
			end--
		}
		out = append(out, append([]string(nil), row[:end]...))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

// crop 按区域截取矩阵
func crop(grid Matrix, sp span) Matrix {
	out := Matrix{}
	for i, row := range grid {
		if !sp.containsRow(i + 1) {
			continue
		}
		cells := []string{}
		for j, v := range row {
			if sp.containsCol(j + 1) {
				cells = append(cells, v)
			}
		}
		out = append(out, cells)
	}
	// 起始行之前的部分不返回，但中间的空行保留
	return Trim(out)
}

// writeAt 从 (col,row)（1 起）开始写入
func writeAt(grid Matrix, col, row int, values Matrix) Matrix {
	for i, vals := range values {
		r := row - 1 + i
		for len(grid) <= r {
			grid = append(grid, []string{})
		}
		for j, v := range vals {
			c := col - 1 + j
			for len(grid[r]) <= c {
				grid[r] = append(grid[r], "")
			}
			grid[r][c] = v
		}
	}
	return grid
}

// clearSpan 清空区域内的单元格
func clearSpan(grid Matrix, sp span) Matrix {
	for i := range grid {
		if !sp.containsRow(i + 1) {
			continue
		}
		for j := range grid[i] {
			if sp.containsCol(j + 1) {
				grid[i][j] = ""
			}
		}
	}
	return Trim(grid)
}

// nextAppendRow 追加行的行号：区域内最后一个非空行之后
func nextAppendRow(grid Matrix, sp span) int {
	last := 0
	for i, row := range grid {
		if !sp.containsRow(i + 1) {
			continue
		}
		for j, v := range row {
			if sp.containsCol(j+1) && v != "" {
				last = i + 1
				break
			}
		}
	}
	if last < sp.startRow() {
		return sp.startRow()
	}
	return last + 1
}
