package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sabriotcore-code/rei-api/internal/prodsync"
)

// DefaultHistoryLimit 历史查询默认条数
const DefaultHistoryLimit = 50

// SyncRun 一条同步记录
type SyncRun struct {
	ID           int64                 `json:"id"`
	RunID        string                `json:"runId"`
	Forced       bool                  `json:"forced"`
	ControlValue string                `json:"controlValue"`
	TargetDate   string                `json:"targetDate,omitempty"`
	Success      bool                  `json:"success"`
	Reason       string                `json:"reason,omitempty"`
	Pairs        []prodsync.PairResult `json:"pairs"`
	StartedAt    time.Time             `json:"startedAt"`
	FinishedAt   time.Time             `json:"finishedAt"`
}

// RecordSyncRun 写入一次已执行的同步
func (s *Store) RecordSyncRun(ctx context.Context, o *prodsync.Outcome) error {
	if o == nil {
		return nil
	}
	pairs := o.Pairs
	if pairs == nil {
		pairs = []prodsync.PairResult{}
	}
	pairsJSON, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("failed to marshal pair results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, forced, control_value, target_date, success, reason, pairs_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.RunID, o.Forced, o.ControlValue, o.TargetDate, o.Success, o.Reason, string(pairsJSON),
		formatTime(o.StartedAt), formatTime(o.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// ListSyncRuns 最近的同步记录（新的在前）
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, forced, control_value, target_date, success, reason, pairs_json, started_at, finished_at
		FROM sync_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []SyncRun{}
	for rows.Next() {
		var (
			r                   SyncRun
			pairsJSON           string
			startedAt, finished string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Forced, &r.ControlValue, &r.TargetDate,
			&r.Success, &r.Reason, &pairsJSON, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if err := json.Unmarshal([]byte(pairsJSON), &r.Pairs); err != nil {
			return nil, fmt.Errorf("failed to decode pairs of run %s: %w", r.RunID, err)
		}
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
