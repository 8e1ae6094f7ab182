// Package prodsync 按控制单元格中的日期，把来源标签页引用的外部表格整表镜像到目标区域
package prodsync

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabriotcore-code/rei-api/internal/scheduler"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// DefaultInterval 定时同步间隔
const DefaultInterval = 30 * time.Minute

// DefaultExternalSpan 读取外部表格时使用的范围
const DefaultExternalSpan = "A:ZZ"

// 跳过原因
const (
	SkipNoChange       = "no change"
	SkipAlreadyRunning = "sync already running"
)

// ReasonInvalidControlDate 控制单元格无法解析为日期
const ReasonInvalidControlDate = "invalid date in control cell"

// Reason 单个配对的失败原因
type Reason string

const (
	ReasonNoData           Reason = "no_data"
	ReasonNoMatchingDate   Reason = "no_matching_date"
	ReasonInvalidReference Reason = "invalid_reference"
	ReasonExternalEmpty    Reason = "external_empty"
	ReasonIOError          Reason = "io_error"
	ReasonPanic            Reason = "panic"
)

// unexpected 是否属于非预期失败（影响整体 Success）
func (r Reason) unexpected() bool {
	return r == ReasonIOError || r == ReasonPanic
}

// PairConfig 一组 来源标签页 -> 目标区域 的配置
type PairConfig struct {
	Name            string
	Source          sheetstore.RangeRef
	TimestampColumn int // 来源区域内的列下标（0 起）
	ReferenceColumn int
	Target          sheetstore.RangeRef
}

// PairResult 单个配对的同步结果
type PairResult struct {
	Name       string     `json:"name"`
	Success    bool       `json:"success"`
	Reason     Reason     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`
	SourceRow  int        `json:"sourceRow,omitempty"`
	MatchedAt  *time.Time `json:"matchedAt,omitempty"`
	ExternalID string     `json:"externalId,omitempty"`
	RowsCopied int        `json:"rowsCopied"`
}

// Outcome 一次 RunSync 的结果
type Outcome struct {
	RunID        string       `json:"runId,omitempty"`
	Success      bool         `json:"success"`
	Skipped      bool         `json:"skipped"`
	Reason       string       `json:"reason,omitempty"`
	Forced       bool         `json:"forced"`
	ControlValue string       `json:"controlValue,omitempty"`
	TargetDate   string       `json:"targetDate,omitempty"`
	Pairs        []PairResult `json:"pairs,omitempty"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   time.Time    `json:"finishedAt"`
}

// Status 同步状态（仅进程内）
type Status struct {
	LastControlValue string     `json:"lastControlValue"`
	LastSyncAt       *time.Time `json:"lastSyncAt,omitempty"`
	Running          bool       `json:"running"`
	LastOutcome      *Outcome   `json:"lastOutcome,omitempty"`
}

// Recorder 记录已执行的同步
type Recorder interface {
	RecordSyncRun(ctx context.Context, o *Outcome) error
}

// Options 同步任务配置
type Options struct {
	Store        sheetstore.RangeStore
	ControlCell  sheetstore.RangeRef
	Pairs        []PairConfig
	ExternalSpan string
	Interval     time.Duration
	Location     *time.Location
	Now          func() time.Time
	Logger       *slog.Logger
	Recorder     Recorder
}

// Job 生产数据同步任务
type Job struct {
	store        sheetstore.RangeStore
	control      sheetstore.RangeRef
	pairs        []PairConfig
	externalSpan string
	interval     time.Duration
	loc          *time.Location
	now          func() time.Time
	logger       *slog.Logger
	recorder     Recorder

	// running 保证同一时刻只有一次同步，冲突时跳过而不是排队
	running sync.Mutex

	mu          sync.Mutex
	hasState    bool
	lastControl string
	lastSyncAt  time.Time
	inProgress  bool
	lastOutcome *Outcome

	runner *scheduler.Runner
}

// NewJob 创建同步任务
func NewJob(opts Options) *Job {
	if opts.ExternalSpan == "" {
		opts.ExternalSpan = DefaultExternalSpan
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Job{
		store:        opts.Store,
		control:      opts.ControlCell,
		pairs:        append([]PairConfig(nil), opts.Pairs...),
		externalSpan: opts.ExternalSpan,
		interval:     opts.Interval,
		loc:          opts.Location,
		now:          opts.Now,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		runner:       scheduler.NewRunner(opts.Logger),
	}
}

// Start 启动定时同步（force=false）
func (j *Job) Start(ctx context.Context) {
	j.runner.Go(ctx, scheduler.Task{
		Name:      "production-sync",
		Interval:  j.interval,
		Immediate: true,
		Run: func(ctx context.Context) {
			j.RunSync(ctx, false)
		},
	})
}

// Shutdown 停止定时同步，等待进行中的一次完成
func (j *Job) Shutdown() {
	j.runner.Stop()
}

// Status 当前同步状态
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := Status{
		LastControlValue: j.lastControl,
		Running:          j.inProgress,
		LastOutcome:      j.lastOutcome,
	}
	if !j.lastSyncAt.IsZero() {
		at := j.lastSyncAt
		st.LastSyncAt = &at
	}
	return st
}

// RunSync 执行一次同步。force 为 true 时跳过变化检查。
// 同步一旦开始就执行到底，不跟随 ctx 取消。
func (j *Job) RunSync(ctx context.Context, force bool) *Outcome {
	if !j.running.TryLock() {
		j.logger.Info("sync skipped", "reason", SkipAlreadyRunning, "forced", force)
		return &Outcome{
			Success:    true,
			Skipped:    true,
			Reason:     SkipAlreadyRunning,
			Forced:     force,
			StartedAt:  j.now(),
			FinishedAt: j.now(),
		}
	}
	defer j.running.Unlock()

	j.setInProgress(true)
	defer j.setInProgress(false)

	ctx = context.WithoutCancel(ctx)
	out := &Outcome{Forced: force, StartedAt: j.now()}

	controlRows, err := j.store.ReadRange(ctx, j.control)
	if err != nil {
		out.Reason = fmt.Sprintf("failed to read control cell: %v", err)
		return j.finish(ctx, out)
	}
	control := controlRows.Cell(0, 0)
	out.ControlValue = control

	if !force && j.unchanged(control) {
		out.Success = true
		out.Skipped = true
		out.Reason = SkipNoChange
		out.FinishedAt = j.now()
		j.logger.Debug("sync skipped", "reason", SkipNoChange, "control", control)
		return out
	}

	target, ok := ParseDate(control, j.loc)
	if !ok {
		// 不更新状态，下一次触发会重试
		out.Reason = ReasonInvalidControlDate
		return j.finish(ctx, out)
	}
	out.TargetDate = target.Format("2006-01-02")

	out.Pairs = make([]PairResult, len(j.pairs))
	var wg sync.WaitGroup
	for i, pair := range j.pairs {
		wg.Add(1)
		go func(i int, pair PairConfig) {
			defer wg.Done()
			out.Pairs[i] = j.syncPair(ctx, pair, target)
		}(i, pair)
	}
	wg.Wait()

	j.mu.Lock()
	j.hasState = true
	j.lastControl = control
	j.lastSyncAt = j.now()
	j.mu.Unlock()

	out.Success = true
	for _, p := range out.Pairs {
		if p.Reason.unexpected() {
			out.Success = false
		}
	}
	return j.finish(ctx, out)
}

func (j *Job) unchanged(control string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	// 原样字符串比较：序列号与格式化文本视为不同的值
	return j.hasState && control == j.lastControl
}

func (j *Job) setInProgress(v bool) {
	j.mu.Lock()
	j.inProgress = v
	j.mu.Unlock()
}

func (j *Job) finish(ctx context.Context, out *Outcome) *Outcome {
	out.RunID = uuid.NewString()
	out.FinishedAt = j.now()

	j.mu.Lock()
	j.lastOutcome = out
	j.mu.Unlock()

	attrs := []any{
		"runId", out.RunID,
		"forced", out.Forced,
		"control", out.ControlValue,
		"success", out.Success,
	}
	for _, p := range out.Pairs {
		attrs = append(attrs, p.Name, pairSummary(p))
	}
	switch {
	case out.Reason != "":
		j.logger.Warn("sync failed: "+out.Reason, attrs...)
	case !out.Success:
		j.logger.Warn("sync finished with errors", attrs...)
	default:
		j.logger.Info("sync finished", attrs...)
	}

	if j.recorder != nil {
		if err := j.recorder.RecordSyncRun(ctx, out); err != nil {
			j.logger.Warn("failed to record sync run", "runId", out.RunID, "error", err)
		}
	}
	return out
}

func pairSummary(p PairResult) string {
	if p.Success {
		return fmt.Sprintf("ok rows=%d", p.RowsCopied)
	}
	return string(p.Reason)
}

// syncPair 包一层 recover，单个配对的 panic 不影响另一组
func (j *Job) syncPair(ctx context.Context, pair PairConfig, target time.Time) (res PairResult) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("sync pair panicked",
				"pair", pair.Name,
				"panic", r,
				"stack", string(debug.Stack()))
			res = PairResult{Name: pair.Name, Reason: ReasonPanic, Error: fmt.Sprint(r)}
		}
	}()
	return j.SyncOne(ctx, pair, target)
}

// SyncOne 同步单个配对：选出目标日期当天时间最晚的来源行，
// 按其链接读取外部表格，清空目标区域后从左上角整表写入。
func (j *Job) SyncOne(ctx context.Context, pair PairConfig, target time.Time) PairResult {
	res := PairResult{Name: pair.Name}
	fail := func(reason Reason, err error) PairResult {
		res.Reason = reason
		if err != nil {
			res.Error = err.Error()
		}
		return res
	}

	rows, err := j.store.ReadRange(ctx, pair.Source)
	if err != nil {
		return fail(ReasonIOError, err)
	}
	if len(rows) == 0 {
		return fail(ReasonNoData, nil)
	}

	best := -1
	var bestAt time.Time
	for i, row := range rows {
		if pair.TimestampColumn >= len(row) {
			continue
		}
		at, ok := ParseDate(row[pair.TimestampColumn], j.loc)
		if !ok || !SameDay(at, target) {
			continue
		}
		if best < 0 || at.After(bestAt) {
			best, bestAt = i, at
		}
	}
	if best < 0 {
		return fail(ReasonNoMatchingDate, fmt.Errorf("no row dated %s", target.Format("2006-01-02")))
	}
	res.SourceRow = pair.Source.StartRow() + best
	res.MatchedAt = &bestAt

	link := rows.Cell(best, pair.ReferenceColumn)
	id, ok := ExtractSpreadsheetID(link)
	if !ok {
		return fail(ReasonInvalidReference, fmt.Errorf("unrecognized spreadsheet link %q", link))
	}
	res.ExternalID = id

	external, err := j.store.ReadRange(ctx, sheetstore.Ref(id, "", j.externalSpan))
	if err != nil {
		return fail(ReasonIOError, err)
	}
	if len(external) == 0 {
		return fail(ReasonExternalEmpty, nil)
	}

	start, err := pair.Target.Start()
	if err != nil {
		return fail(ReasonIOError, err)
	}
	if err := j.store.ClearRange(ctx, pair.Target); err != nil {
		return fail(ReasonIOError, err)
	}
	if err := j.store.WriteRange(ctx, pair.Target.WithSpan(start), external); err != nil {
		return fail(ReasonIOError, err)
	}

	res.Success = true
	res.RowsCopied = len(external)
	return res
}
