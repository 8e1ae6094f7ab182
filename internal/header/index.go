// Package header 将标签页首行解析为规范化列名到列下标的映射
package header

import (
	"regexp"
	"strings"
)

// 含不间断空格等 Unicode 空白
var whitespaceRun = regexp.MustCompile(`[\s\p{Zs}]+`)

// NormalizeLabel 规范化表头显示名：换行与连续空白压缩为一个空格并去除首尾空白
func NormalizeLabel(raw string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))
}

// NormalizeKey 规范化表头键：在 NormalizeLabel 基础上转大写，空白替换为 "_"
func NormalizeKey(raw string) string {
	label := NormalizeLabel(raw)
	if label == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToUpper(label), " ", "_")
}

// Column 表头列
type Column struct {
	Name     string `json:"name"`
	Column   int    `json:"column"`
	Original string `json:"original"`
}

// Index 表头索引。每次从首行整体重建，不做增量修补。
type Index struct {
	keys    map[string]int
	columns []Column
}

// Build 由首行构建索引。空表头跳过；重名时后出现的列生效。
func Build(row []string) *Index {
	idx := &Index{keys: make(map[string]int, len(row))}
	for i, raw := range row {
		key := NormalizeKey(raw)
		if key == "" {
			continue
		}
		idx.keys[key] = i

		original := raw
		if r := []rune(original); len(r) > 50 {
			original = string(r[:50])
		}
		idx.columns = append(idx.columns, Column{
			Name:     NormalizeLabel(raw),
			Column:   i,
			Original: original,
		})
	}
	return idx
}

// Lookup 按顺序尝试别名，返回第一个存在的列
func (idx *Index) Lookup(aliases ...string) (int, bool) {
	if idx == nil {
		return 0, false
	}
	for _, a := range aliases {
		if col, ok := idx.keys[NormalizeKey(a)]; ok {
			return col, true
		}
	}
	return 0, false
}

// Has 是否存在任一别名
func (idx *Index) Has(aliases ...string) bool {
	_, ok := idx.Lookup(aliases...)
	return ok
}

// Value 读取行中别名对应的单元格，列缺失或行过短时返回空串
func (idx *Index) Value(row []string, aliases ...string) string {
	col, ok := idx.Lookup(aliases...)
	if !ok || col >= len(row) {
		return ""
	}
	return row[col]
}

// Missing 返回无法解析的别名组（以每组首个别名表示）
func (idx *Index) Missing(groups ...[]string) []string {
	var missing []string
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		if !idx.Has(g...) {
			missing = append(missing, NormalizeKey(g[0]))
		}
	}
	return missing
}

// Columns 非空表头列（按列顺序，重名列均保留）
func (idx *Index) Columns() []Column {
	return append([]Column(nil), idx.columns...)
}

// Len 已登记的键数量
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.keys)
}
