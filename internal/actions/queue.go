package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// 工作队列类型
const (
	WorkTodoCreate   = "TODO_CREATE"
	WorkNoteTransfer = "NOTE_TRANSFER"
)

// QueueResult 入队结果
type QueueResult struct {
	Success   bool   `json:"success"`
	TodoID    string `json:"todoId,omitempty"`
	QueueID   string `json:"queueId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type queueRequest struct {
	Reid    string          `json:"reid"`
	Primary string          `json:"primary"`
	Payload json.RawMessage `json:"payload"`
}

// payloadField 取 payload 中的字符串字段，payload 不是对象时视为缺失
func (r queueRequest) payloadField(name string) string {
	if len(r.Payload) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(r.Payload, &fields); err != nil {
		return ""
	}
	v, ok := fields[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (s *Service) queueTodo(ctx context.Context, body json.RawMessage) (any, error) {
	var req queueRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.payloadField("action") == "" {
		return nil, fmt.Errorf("%w: Payload with action is required", ErrInvalidRequest)
	}

	queueID, err := s.enqueue(ctx, WorkTodoCreate, req)
	if err != nil {
		return nil, err
	}
	return QueueResult{
		Success:   true,
		TodoID:    s.newID("TD"),
		QueueID:   queueID,
		Message:   "To-do queued for processing",
		Timestamp: s.timestamp(),
	}, nil
}

func (s *Service) queueNote(ctx context.Context, body json.RawMessage) (any, error) {
	var req queueRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.payloadField("note") == "" {
		return nil, fmt.Errorf("%w: Payload with note is required", ErrInvalidRequest)
	}

	queueID, err := s.enqueue(ctx, WorkNoteTransfer, req)
	if err != nil {
		return nil, err
	}
	return QueueResult{
		Success:   true,
		QueueID:   queueID,
		Message:   "Note queued for processing",
		Timestamp: s.timestamp(),
	}, nil
}

// enqueue 向工作流表格的 QUEUE 追加一行：
// QUEUE_ID, QUEUED_AT, WORK_TYPE, REID, PRIMARY, PAYLOAD, STATUS,
// STARTED_AT, COMPLETED_AT, RESULT, ERROR, RETRY_COUNT
func (s *Service) enqueue(ctx context.Context, workType string, req queueRequest) (string, error) {
	queueID := s.newID("WQ")
	row := []string{
		queueID,
		s.timestamp(),
		workType,
		req.Reid,
		req.Primary,
		compactJSON(req.Payload),
		"PENDING",
		"", "", "", "", "0",
	}
	ref := sheetstore.Ref(s.workflow, s.tabs.Queue, "A:L")
	if err := s.store.AppendRow(ctx, ref, row); err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", ref.A1(), err)
	}
	s.logger.Info("work item queued", "queueId", queueID, "type", workType, "reid", req.Reid)
	return queueID, nil
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
