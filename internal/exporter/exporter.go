// Package exporter 将当前聚合结果导出为 Excel 工作簿
package exporter

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sabriotcore-code/rei-api/internal/aggregate"
)

// 工作表名称
const (
	SheetTotals   = "Totals"
	SheetByStatus = "ByStatus"
	SheetByCity   = "ByCity"
	SheetByEntity = "ByEntity"
	SheetMissing  = "MissingColumns"
)

// ContentType xlsx 的 MIME 类型
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export 生成汇总工作簿。调用方负责 Close。
func Export(agg *aggregate.Aggregates, refreshedAt time.Time) (*excelize.File, error) {
	if agg == nil {
		return nil, fmt.Errorf("no aggregates to export")
	}

	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetTotals); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := fillTotals(f, headerStyle, agg, refreshedAt); err != nil {
		_ = f.Close()
		return nil, err
	}

	groups := []struct {
		sheet  string
		label  string
		counts map[string]int
	}{
		{SheetByStatus, "Status", agg.ByStatus},
		{SheetByCity, "City", agg.ByCity},
		{SheetByEntity, "Entity", agg.ByEntity},
	}
	for _, g := range groups {
		if err := fillGroup(f, headerStyle, g.sheet, g.label, g.counts); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if len(agg.MissingColumns) > 0 {
		rows := [][]any{{"Missing column"}}
		for _, col := range agg.MissingColumns {
			rows = append(rows, []any{col})
		}
		if err := writeSheet(f, headerStyle, SheetMissing, rows); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

// ContentDisposition 下载文件名，如 aggregates-2024-03-01.xlsx
func ContentDisposition(refreshedAt time.Time) string {
	return fmt.Sprintf("attachment; filename=\"aggregates-%s.xlsx\"", refreshedAt.Format("2006-01-02"))
}

func fillTotals(f *excelize.File, style int, agg *aggregate.Aggregates, refreshedAt time.Time) error {
	t := agg.Totals()
	rows := [][]any{
		{"Metric", "Total", "Count"},
		{"Properties", t.PropertyCount, t.PropertyCount},
		{"Gross receipts", t.GrossRcptsTotal, t.GrossRcptsCount},
		{"Rent", t.RentTotal, t.RentCount},
		{"Loan balance", t.LoanBalanceTotal, t.LoanBalanceCount},
		{"Tax", t.TaxTotal, t.TaxCount},
		{},
		{"Refreshed at", refreshedAt.UTC().Format(time.RFC3339)},
	}
	if err := writeSheet(f, style, SheetTotals, rows); err != nil {
		return err
	}
	return f.SetColWidth(SheetTotals, "A", "A", 18)
}

func fillGroup(f *excelize.File, style int, sheet, label string, counts map[string]int) error {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// 数量降序，数量相同按名称
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	rows := [][]any{{label, "Properties"}}
	for _, k := range keys {
		rows = append(rows, []any{k, counts[k]})
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	if err := writeSheet(f, style, sheet, rows); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", "A", 28)
}

// writeSheet 写入整表，首行使用表头样式
func writeSheet(f *excelize.File, style int, sheet string, rows [][]any) error {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
			}
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", end, style)
}
