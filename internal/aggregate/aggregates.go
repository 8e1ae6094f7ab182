// Package aggregate 缓存主数据标签页快照并计算汇总统计
package aggregate

import (
	"strings"

	"github.com/sabriotcore-code/rei-api/internal/header"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// UnknownGroup 分组键为空时使用的键
const UnknownGroup = "Unknown"

// 统计列及其别名
var (
	GrossRcptsColumns  = []string{"GROSS_RCPTS", "GROSS_RECEIPTS"}
	RentColumns        = []string{"RENT", "MONTHLY_RENT", "RENT_AMOUNT"}
	LoanBalanceColumns = []string{"LOAN_BALANCE", "LOAN_BAL"}
	TaxColumns         = []string{"TAX", "PROPERTY_TAX", "TAXES"}
	StatusColumns      = []string{"STATUS", "PROPERTY_STATUS"}
	CityColumns        = []string{"CITY"}
	EntityColumns      = []string{"ENTITY", "OWNING_ENTITY", "OWNER"}
)

// Aggregates 单个快照上的汇总统计
type Aggregates struct {
	PropertyCount int `json:"propertyCount"`

	GrossRcptsTotal  float64 `json:"grossRcptsTotal"`
	GrossRcptsCount  int     `json:"grossRcptsCount"`
	RentTotal        float64 `json:"rentTotal"`
	RentCount        int     `json:"rentCount"`
	LoanBalanceTotal float64 `json:"loanBalanceTotal"`
	LoanBalanceCount int     `json:"loanBalanceCount"`
	TaxTotal         float64 `json:"taxTotal"`
	TaxCount         int     `json:"taxCount"`

	ByStatus map[string]int `json:"byStatus"`
	ByCity   map[string]int `json:"byCity"`
	ByEntity map[string]int `json:"byEntity"`

	// 未找到的统计列（表头改名/缺失时可观测）
	MissingColumns []string `json:"missingColumns"`
}

// Totals 数值汇总部分
type Totals struct {
	PropertyCount    int     `json:"propertyCount"`
	GrossRcptsTotal  float64 `json:"grossRcptsTotal"`
	GrossRcptsCount  int     `json:"grossRcptsCount"`
	RentTotal        float64 `json:"rentTotal"`
	RentCount        int     `json:"rentCount"`
	LoanBalanceTotal float64 `json:"loanBalanceTotal"`
	LoanBalanceCount int     `json:"loanBalanceCount"`
	TaxTotal         float64 `json:"taxTotal"`
	TaxCount         int     `json:"taxCount"`
}

// Totals 取出数值汇总
func (a *Aggregates) Totals() Totals {
	return Totals{
		PropertyCount:    a.PropertyCount,
		GrossRcptsTotal:  a.GrossRcptsTotal,
		GrossRcptsCount:  a.GrossRcptsCount,
		RentTotal:        a.RentTotal,
		RentCount:        a.RentCount,
		LoanBalanceTotal: a.LoanBalanceTotal,
		LoanBalanceCount: a.LoanBalanceCount,
		TaxTotal:         a.TaxTotal,
		TaxCount:         a.TaxCount,
	}
}

// Compute 单次线性扫描计算汇总。rows[0] 为表头。
// 所有单元格均为空白的行被跳过，不计入 PropertyCount 与任何分组；
// 其余数据行（即使没有 REID）都计为一个物业。
func Compute(rows sheetstore.Matrix) (*header.Index, *Aggregates) {
	var headerRow []string
	if len(rows) > 0 {
		headerRow = rows[0]
	}
	idx := header.Build(headerRow)

	agg := &Aggregates{
		ByStatus: map[string]int{},
		ByCity:   map[string]int{},
		ByEntity: map[string]int{},
		MissingColumns: idx.Missing(
			GrossRcptsColumns, RentColumns, LoanBalanceColumns, TaxColumns,
			StatusColumns, CityColumns, EntityColumns,
		),
	}
	if agg.MissingColumns == nil {
		agg.MissingColumns = []string{}
	}

	var gross, rent, loan, tax numericTotal
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		agg.PropertyCount++

		gross.add(idx.Value(row, GrossRcptsColumns...))
		rent.add(idx.Value(row, RentColumns...))
		loan.add(idx.Value(row, LoanBalanceColumns...))
		tax.add(idx.Value(row, TaxColumns...))

		agg.ByStatus[groupKey(idx.Value(row, StatusColumns...))]++
		agg.ByCity[groupKey(idx.Value(row, CityColumns...))]++
		agg.ByEntity[groupKey(idx.Value(row, EntityColumns...))]++
	}

	agg.GrossRcptsTotal, agg.GrossRcptsCount = gross.total(), gross.count
	agg.RentTotal, agg.RentCount = rent.total(), rent.count
	agg.LoanBalanceTotal, agg.LoanBalanceCount = loan.total(), loan.count
	agg.TaxTotal, agg.TaxCount = tax.total(), tax.count

	return idx, agg
}

func groupKey(raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return UnknownGroup
	}
	return key
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
