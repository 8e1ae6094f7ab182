package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"
)

var amountCleaner = strings.NewReplacer(",", "", "$", "")

// ParseAmount 解析金额单元格：去掉千分位与货币符号后必须是有限数值
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(amountCleaner.Replace(raw))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// numericTotal 数值列累计：可解析的值计入总和，大于 0 的值计入计数
type numericTotal struct {
	sum   decimal.Decimal
	count int
}

func (n *numericTotal) add(raw string) {
	d, ok := ParseAmount(raw)
	if !ok {
		return
	}
	n.sum = n.sum.Add(d)
	if d.IsPositive() {
		n.count++
	}
}

func (n numericTotal) total() float64 {
	return n.sum.InexactFloat64()
}
