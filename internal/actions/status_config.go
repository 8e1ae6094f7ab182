package actions

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// 未设置排序分的状态排在最后
const defaultSortScore = 999

// StatusEntry 可见状态
type StatusEntry struct {
	Status    string  `json:"status"`
	SortScore float64 `json:"sortScore"`
}

// StatusConfigResult getStatusConfig 结果
type StatusConfigResult struct {
	Success        bool          `json:"success"`
	Statuses       []StatusEntry `json:"statuses"`
	HiddenStatuses []string      `json:"hiddenStatuses"`
	Error          string        `json:"error,omitempty"`
	Timestamp      string        `json:"timestamp,omitempty"`
}

func (s *Service) getStatusConfig(ctx context.Context, _ json.RawMessage) (any, error) {
	idx, rows, err := s.readTab(ctx, sheetstore.Ref(s.pme, s.tabs.Var, "A:Z"))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return StatusConfigResult{Success: true, Statuses: []StatusEntry{}, HiddenStatuses: []string{}}, nil
	}

	statusCol, ok := idx.Lookup("STATUS_LIST", "STATUSLIST")
	if !ok {
		return StatusConfigResult{Success: false, Error: "STATUS LIST column not found"}, nil
	}
	sortCol, hasSort := idx.Lookup("UI_SORT_SCORE", "UISORTSCORE")

	statuses := []StatusEntry{}
	hidden := []string{}
	for i, row := range rows {
		status := strings.TrimSpace(cell(row, statusCol))
		if status == "" {
			continue
		}

		if !hasSort {
			statuses = append(statuses, StatusEntry{Status: status, SortScore: float64(i + 1)})
			continue
		}
		raw := strings.TrimSpace(cell(row, sortCol))
		if strings.EqualFold(raw, "X") {
			hidden = append(hidden, status)
			continue
		}
		statuses = append(statuses, StatusEntry{Status: status, SortScore: sortScore(raw)})
	}

	sort.SliceStable(statuses, func(a, b int) bool {
		return statuses[a].SortScore < statuses[b].SortScore
	})

	return StatusConfigResult{
		Success:        true,
		Statuses:       statuses,
		HiddenStatuses: hidden,
		Timestamp:      s.timestamp(),
	}, nil
}

// sortScore 空值、非数字与 0 都按默认分处理
func sortScore(raw string) float64 {
	if raw == "" {
		return defaultSortScore
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return defaultSortScore
	}
	return v
}
