package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sabriotcore-code/rei-api/internal/header"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// PropertyLabelsResult getAllPropertyLabels 结果：REID -> 表头显示名 -> 值
type PropertyLabelsResult struct {
	Success    bool                         `json:"success"`
	Properties map[string]map[string]string `json:"properties"`
	Count      int                          `json:"count"`
	Timestamp  string                       `json:"timestamp,omitempty"`
}

func (s *Service) getAllPropertyLabels(ctx context.Context, body json.RawMessage) (any, error) {
	var req struct {
		Reids  []string `json:"reids"`
		Fields []string `json:"fields"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}

	snap, err := s.cache.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.Rows) < 2 {
		return PropertyLabelsResult{Success: true, Properties: map[string]map[string]string{}}, nil
	}

	reidCol, ok := snap.Header.Lookup("REID")
	if !ok {
		return nil, fmt.Errorf("REID column not found")
	}

	// 显示名 -> 列；重名时后出现的列生效
	labels := map[string]int{}
	for _, c := range snap.Header.Columns() {
		labels[c.Name] = c.Column
	}

	var reids, fields map[string]bool
	if req.Reids != nil {
		reids = make(map[string]bool, len(req.Reids))
		for _, r := range req.Reids {
			reids[r] = true
		}
	}
	if req.Fields != nil {
		fields = make(map[string]bool, len(req.Fields))
		for _, f := range req.Fields {
			fields[header.NormalizeLabel(f)] = true
		}
	}

	properties := map[string]map[string]string{}
	for _, row := range snap.Rows[1:] {
		reid := cell(row, reidCol)
		if reid == "" {
			continue
		}
		if reids != nil && !reids[reid] {
			continue
		}
		data := make(map[string]string, len(labels))
		for name, col := range labels {
			if fields != nil && !fields[name] {
				continue
			}
			data[name] = cell(row, col)
		}
		properties[reid] = data
	}

	return PropertyLabelsResult{
		Success:    true,
		Properties: properties,
		Count:      len(properties),
		Timestamp:  s.timestamp(),
	}, nil
}

// MainHeadersResult getMainHeaders 结果
type MainHeadersResult struct {
	Success   bool            `json:"success"`
	Fields    []header.Column `json:"fields,omitempty"`
	Count     int             `json:"count"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

func (s *Service) getMainHeaders(ctx context.Context, _ json.RawMessage) (any, error) {
	snap, err := s.cache.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	fields := snap.Header.Columns()
	if len(fields) == 0 {
		return MainHeadersResult{Success: false, Error: "No headers found"}, nil
	}
	return MainHeadersResult{
		Success:   true,
		Fields:    fields,
		Count:     len(fields),
		Timestamp: s.timestamp(),
	}, nil
}

// PropertyFlagResult updatePropertyFlag 结果
type PropertyFlagResult struct {
	Success   bool   `json:"success"`
	Reid      string `json:"reid"`
	Flagged   bool   `json:"flagged"`
	Timestamp string `json:"timestamp"`
}

func (s *Service) updatePropertyFlag(ctx context.Context, body json.RawMessage) (any, error) {
	var req struct {
		Reid    string `json:"reid"`
		Flagged bool   `json:"flagged"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.Reid == "" {
		return nil, fmt.Errorf("%w: reid is required", ErrInvalidRequest)
	}

	// 写入需要当前行号，直接读表而不是用缓存
	idx, rows, err := s.readTab(ctx, sheetstore.Ref(s.pme, s.tabs.Main, "A:ZZ"))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: No properties found", ErrNotFound)
	}

	flagCol, ok := idx.Lookup("FLAG")
	if !ok {
		return nil, fmt.Errorf("FLAG column not found")
	}
	reidCol, ok := idx.Lookup("REID")
	if !ok {
		return nil, fmt.Errorf("REID column not found")
	}

	target := -1
	for i, row := range rows {
		if reidCol < len(row) && row[reidCol] == req.Reid {
			target = i + 2
			break
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("%w: Property not found: %s", ErrNotFound, req.Reid)
	}

	value := "FALSE"
	if req.Flagged {
		value = "TRUE"
	}
	if err := s.writeCell(ctx, s.tabs.Main, flagCol, target, value); err != nil {
		return nil, err
	}

	return PropertyFlagResult{
		Success:   true,
		Reid:      req.Reid,
		Flagged:   req.Flagged,
		Timestamp: s.timestamp(),
	}, nil
}
