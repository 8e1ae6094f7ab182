// Package scheduler 固定间隔执行后台任务，任务中的 panic 被捕获后等待下一次触发
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Task 周期任务
type Task struct {
	Name      string
	Interval  time.Duration
	Immediate bool // 启动时先执行一次
	Run       func(ctx context.Context)
}

// Loop 阻塞执行，直到 ctx 结束
func Loop(ctx context.Context, task Task, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if task.Interval <= 0 {
		logger.Warn("scheduled task disabled: non-positive interval", "task", task.Name)
		return
	}

	if task.Immediate {
		runSafely(ctx, task, logger)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runSafely(ctx, task, logger)
		}
	}
}

func runSafely(ctx context.Context, task Task, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled task panicked",
				"task", task.Name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	task.Run(ctx)
}

// Runner 管理后台任务的生命周期
type Runner struct {
	logger *slog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner 创建任务运行器
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Go 在后台启动任务
func (r *Runner) Go(parent context.Context, task Task) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.logger.Info("scheduled task started", "task", task.Name, "interval", task.Interval.String())
		Loop(ctx, task, r.logger)
		r.logger.Info("scheduled task stopped", "task", task.Name)
	}()
}

// Stop 取消所有任务并等待退出。正在执行的一次任务会先完成。
func (r *Runner) Stop() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	r.wg.Wait()
}
