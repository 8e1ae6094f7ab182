// Package actions 实现 POST / 的动作协议：待办、备注队列、物业标签与状态配置
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sabriotcore-code/rei-api/internal/aggregate"
	"github.com/sabriotcore-code/rei-api/internal/header"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// ServiceName ping 与健康检查中返回的服务名
const ServiceName = "rei-api"

var (
	// ErrInvalidRequest 请求缺少必填字段或动作未知
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound 目标行不存在
	ErrNotFound = errors.New("not found")
)

// Tabs 各标签页名称
type Tabs struct {
	Main       string
	TodoMaster string
	Var        string
	Queue      string
}

// DefaultTabs 默认标签页
func DefaultTabs() Tabs {
	return Tabs{
		Main:       "MAIN",
		TodoMaster: "TO_DO_MASTER",
		Var:        "VAR",
		Queue:      "QUEUE",
	}
}

// Cache 聚合缓存中动作处理需要的部分
type Cache interface {
	Get(ctx context.Context) aggregate.Result
	Snapshot(ctx context.Context) (*aggregate.Snapshot, error)
}

// Options 动作服务配置
type Options struct {
	Store                 sheetstore.RangeStore
	Cache                 Cache
	PMESpreadsheetID      string
	WorkflowSpreadsheetID string
	Tabs                  Tabs
	Now                   func() time.Time
	Logger                *slog.Logger
}

type handlerFunc func(ctx context.Context, body json.RawMessage) (any, error)

// Service 动作分发
type Service struct {
	store    sheetstore.RangeStore
	cache    Cache
	pme      string
	workflow string
	tabs     Tabs
	now      func() time.Time
	logger   *slog.Logger

	handlers map[string]handlerFunc
}

// NewService 创建动作服务
func NewService(opts Options) *Service {
	if opts.Tabs == (Tabs{}) {
		opts.Tabs = DefaultTabs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Service{
		store:    opts.Store,
		cache:    opts.Cache,
		pme:      opts.PMESpreadsheetID,
		workflow: opts.WorkflowSpreadsheetID,
		tabs:     opts.Tabs,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	s.handlers = map[string]handlerFunc{
		"ping":                 s.ping,
		"getTodos":             s.getTodos,
		"queueTodo":            s.queueTodo,
		"updateTodo":           s.updateTodo,
		"queueNote":            s.queueNote,
		"getAllPropertyLabels": s.getAllPropertyLabels,
		"getStatusConfig":      s.getStatusConfig,
		"getMainHeaders":       s.getMainHeaders,
		"updatePropertyFlag":   s.updatePropertyFlag,
		"getAggregates":        s.getAggregates,
	}
	return s
}

// Actions 已注册的动作名（排序）
func (s *Service) Actions() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type envelope struct {
	Action string `json:"action"`
}

// Handle 解析请求体中的 action 并分发，其余字段交给对应动作
func (s *Service) Handle(ctx context.Context, body []byte) (any, error) {
	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: malformed JSON body", ErrInvalidRequest)
		}
	}
	if env.Action == "" {
		return nil, fmt.Errorf("%w: Missing required field: action", ErrInvalidRequest)
	}
	h, ok := s.handlers[env.Action]
	if !ok {
		return nil, fmt.Errorf("%w: Unknown action: %s", ErrInvalidRequest, env.Action)
	}
	return h(ctx, body)
}

func decode(body json.RawMessage, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// timestamp 统一的 ISO 时间格式
func (s *Service) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// newID 生成 PREFIX-<时间戳36进制>-<随机段> 形式的 ID
func (s *Service) newID(prefix string) string {
	ts := strconv.FormatInt(s.now().UnixMilli(), 36)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return strings.ToUpper(prefix + "-" + ts + "-" + random)
}

// readTab 读取标签页并建立表头索引；少于两行时返回 nil 数据行
func (s *Service) readTab(ctx context.Context, ref sheetstore.RangeRef) (*header.Index, sheetstore.Matrix, error) {
	rows, err := s.store.ReadRange(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", ref.A1(), err)
	}
	if len(rows) == 0 {
		return header.Build(nil), nil, nil
	}
	return header.Build(rows[0]), rows[1:], nil
}

// firstValue 依次取别名列中第一个非空值
func firstValue(idx *header.Index, row []string, aliases ...string) string {
	for _, a := range aliases {
		if v := idx.Value(row, a); v != "" {
			return v
		}
	}
	return ""
}

// cell 安全读取行内单元格
func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// writeCell 写入单个单元格，列号 0 起、行号 1 起
func (s *Service) writeCell(ctx context.Context, tab string, col, row int, value string) error {
	cell := sheetstore.ColumnLetter(col) + strconv.Itoa(row)
	ref := sheetstore.Ref(s.pme, tab, cell)
	if err := s.store.WriteRange(ctx, ref, sheetstore.Matrix{{value}}); err != nil {
		return fmt.Errorf("failed to update %s: %w", ref.A1(), err)
	}
	return nil
}

type pingResult struct {
	Pong      bool   `json:"pong"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

func (s *Service) ping(context.Context, json.RawMessage) (any, error) {
	return pingResult{Pong: true, Timestamp: s.timestamp(), Service: ServiceName}, nil
}

func (s *Service) getAggregates(ctx context.Context, _ json.RawMessage) (any, error) {
	res := s.cache.Get(ctx)
	if !res.Ready {
		return nil, aggregate.ErrNotReady
	}
	return res, nil
}
