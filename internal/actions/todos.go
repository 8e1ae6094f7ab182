package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// DefaultTodoLimit getTodos 默认返回条数
const DefaultTodoLimit = 100

// 待办相关的列别名
var (
	todoIDColumns      = []string{"TO_DO_ID", "TODO_ID"}
	todoStatusColumns  = []string{"TO_DO_STATUS", "STATUS"}
	todoAssignColumns  = []string{"ASSIGNED_TO", "WHO"}
	todoCreatedColumns = []string{"CREATED_DATE/TIME", "CREATED"}
)

var closedStatuses = map[string]bool{
	"DONE":      true,
	"COMPLETED": true,
	"CLOSED":    true,
}

// TodoFilter getTodos 过滤条件
type TodoFilter struct {
	Status   string `json:"status"`
	Assignee string `json:"assignee"`
	Reid     string `json:"reid"`
	Limit    int    `json:"limit"`
}

// Todo 待办
type Todo struct {
	RowIndex     int    `json:"rowIndex"`
	TodoID       string `json:"todoId"`
	Reid         string `json:"reid"`
	Primary      string `json:"primary"`
	Action       string `json:"action"`
	AssignedTo   string `json:"assignedTo"`
	Status       string `json:"status"`
	CreatedDate  string `json:"createdDate"`
	SourceStatus string `json:"sourceStatus"`
}

// TodosResult getTodos 结果
type TodosResult struct {
	Success         bool           `json:"success"`
	Todos           []Todo         `json:"todos"`
	Count           int            `json:"count"`
	StatsByAssignee map[string]int `json:"statsByAssignee"`
	Timestamp       string         `json:"timestamp,omitempty"`
}

func (s *Service) todoRef() sheetstore.RangeRef {
	return sheetstore.Ref(s.pme, s.tabs.TodoMaster, "A:Z")
}

func (s *Service) getTodos(ctx context.Context, body json.RawMessage) (any, error) {
	var req struct {
		Filter TodoFilter `json:"filter"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	filter := req.Filter

	idx, rows, err := s.readTab(ctx, s.todoRef())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return TodosResult{Success: true, Todos: []Todo{}, StatsByAssignee: map[string]int{}}, nil
	}

	todos := []Todo{}
	stats := map[string]int{}
	for i, row := range rows {
		status := strings.ToUpper(firstValue(idx, row, todoStatusColumns...))
		if status == "" {
			status = "OPEN"
		}
		assignee := firstValue(idx, row, todoAssignColumns...)
		if assignee == "" {
			assignee = "Unassigned"
		}

		if !closedStatuses[status] {
			stats[assignee]++
		}

		if filter.Status != "" {
			if status != strings.ToUpper(filter.Status) {
				continue
			}
		} else if closedStatuses[status] {
			continue
		}
		if filter.Assignee != "" && !strings.EqualFold(assignee, filter.Assignee) {
			continue
		}
		reid := idx.Value(row, "REID")
		if filter.Reid != "" && reid != filter.Reid {
			continue
		}

		todos = append(todos, Todo{
			RowIndex:     i + 2,
			TodoID:       firstValue(idx, row, todoIDColumns...),
			Reid:         reid,
			Primary:      idx.Value(row, "PRIMARY"),
			Action:       idx.Value(row, "ACTION"),
			AssignedTo:   assignee,
			Status:       status,
			CreatedDate:  firstValue(idx, row, todoCreatedColumns...),
			SourceStatus: idx.Value(row, "SOURCE_STATUS"),
		})
	}

	count := len(todos)
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultTodoLimit
	}
	if len(todos) > limit {
		todos = todos[:limit]
	}
	return TodosResult{
		Success:         true,
		Todos:           todos,
		Count:           count,
		StatsByAssignee: stats,
		Timestamp:       s.timestamp(),
	}, nil
}

// UpdateTodoResult updateTodo 结果
type UpdateTodoResult struct {
	Success   bool     `json:"success"`
	TodoID    string   `json:"todoId"`
	Updates   []string `json:"updates"`
	Timestamp string   `json:"timestamp"`
}

func (s *Service) updateTodo(ctx context.Context, body json.RawMessage) (any, error) {
	var req struct {
		TodoID  string `json:"todoId"`
		Updates struct {
			Status *string `json:"status"`
		} `json:"updates"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.TodoID == "" {
		return nil, fmt.Errorf("%w: todoId is required", ErrInvalidRequest)
	}

	idx, rows, err := s.readTab(ctx, s.todoRef())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: No to-dos found", ErrNotFound)
	}

	idCol, ok := idx.Lookup(todoIDColumns...)
	if !ok {
		return nil, fmt.Errorf("TO_DO_ID column not found")
	}
	target := -1
	for i, row := range rows {
		if idCol < len(row) && row[idCol] == req.TodoID {
			target = i + 2
			break
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("%w: Todo not found: %s", ErrNotFound, req.TodoID)
	}

	updates := []string{}
	if req.Updates.Status != nil {
		if statusCol, ok := idx.Lookup(todoStatusColumns...); ok {
			if err := s.writeCell(ctx, s.tabs.TodoMaster, statusCol, target, *req.Updates.Status); err != nil {
				return nil, err
			}
			updates = append(updates, "status -> "+*req.Updates.Status)
		} else {
			s.logger.Warn("todo status column not found", "tab", s.tabs.TodoMaster)
		}
	}

	return UpdateTodoResult{
		Success:   true,
		TodoID:    req.TodoID,
		Updates:   updates,
		Timestamp: s.timestamp(),
	}, nil
}
