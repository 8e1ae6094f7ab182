package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sabriotcore-code/rei-api/internal/header"
	"github.com/sabriotcore-code/rei-api/internal/scheduler"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// DefaultTTL 快照有效期
const DefaultTTL = 5 * time.Minute

const refreshKey = "refresh"

// ErrNotReady 从未成功刷新过
var ErrNotReady = errors.New("aggregates not ready")

// Snapshot 主数据标签页的完整快照。创建后不再修改，刷新时整体替换。
type Snapshot struct {
	Rows        sheetstore.Matrix
	Header      *header.Index
	Aggregates  *Aggregates
	RefreshedAt time.Time
}

// Result 缓存访问结果
type Result struct {
	Aggregates      *Aggregates   `json:"aggregates"`
	Ready           bool          `json:"ready"`
	Stale           bool          `json:"stale"`
	CacheAge        time.Duration `json:"-"`
	CacheAgeSeconds float64       `json:"cacheAgeSeconds"`
	RefreshedAt     *time.Time    `json:"refreshedAt,omitempty"`
	LastError       string        `json:"lastError,omitempty"`
}

// Options 缓存配置
type Options struct {
	Store  sheetstore.RangeStore
	Ref    sheetstore.RangeRef // 主数据标签页，如 MAIN!A:ZZ
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// Cache 主数据聚合缓存：过期读触发同步刷新，刷新单飞，失败时继续提供旧快照
type Cache struct {
	store  sheetstore.RangeStore
	ref    sheetstore.RangeRef
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	group singleflight.Group
	snap  atomic.Pointer[Snapshot]

	mu            sync.Mutex
	lastErr       error
	lastAttemptAt time.Time

	runner *scheduler.Runner
}

// NewCache 创建缓存（状态 EMPTY）
func NewCache(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		store:  opts.Store,
		ref:    opts.Ref,
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
		runner: scheduler.NewRunner(opts.Logger),
	}
}

// TTL 快照有效期
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get 获取汇总。未过期时不做任何 I/O；刷新失败时返回旧快照并标记 Stale。
func (c *Cache) Get(ctx context.Context) Result {
	snap := c.current(ctx)
	return c.result(snap)
}

// Snapshot 获取完整快照（同 Get 的过期规则），从未成功刷新时返回 ErrNotReady
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := c.current(ctx)
	if snap == nil {
		if err := c.lastError(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		return nil, ErrNotReady
	}
	return snap, nil
}

// Peek 不触发刷新，仅返回当前状态（用于状态检查）
func (c *Cache) Peek() Result {
	return c.result(c.snap.Load())
}

// ForceRefresh 立即刷新；与进行中的刷新合并
func (c *Cache) ForceRefresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

// Start 启动后台刷新，每个 TTL 周期主动刷新一次
func (c *Cache) Start(ctx context.Context) {
	c.runner.Go(ctx, scheduler.Task{
		Name:      "aggregate-refresh",
		Interval:  c.ttl,
		Immediate: true,
		Run: func(ctx context.Context) {
			if err := c.ForceRefresh(ctx); err != nil {
				c.logger.Warn("background aggregate refresh failed", "error", err)
			}
		},
	})
}

// Shutdown 停止后台刷新
func (c *Cache) Shutdown() {
	c.runner.Stop()
}

func (c *Cache) current(ctx context.Context) *Snapshot {
	snap := c.snap.Load()
	if c.fresh(snap) {
		return snap
	}
	if err := c.refresh(ctx, false); err != nil {
		c.logger.Warn("aggregate refresh failed, serving previous snapshot",
			"error", err,
			"hasSnapshot", snap != nil)
	}
	return c.snap.Load()
}

func (c *Cache) fresh(snap *Snapshot) bool {
	return snap != nil && c.now().Sub(snap.RefreshedAt) < c.ttl
}

func (c *Cache) refresh(ctx context.Context, force bool) error {
	// 刷新一旦开始就执行到底，不跟随调用方取消
	ctx = context.WithoutCancel(ctx)
	_, err, _ := c.group.Do(refreshKey, func() (any, error) {
		if !force && c.fresh(c.snap.Load()) {
			return nil, nil
		}
		return nil, c.load(ctx)
	})
	return err
}

func (c *Cache) load(ctx context.Context) error {
	started := c.now()
	rows, err := c.store.ReadRange(ctx, c.ref)

	c.mu.Lock()
	c.lastAttemptAt = started
	c.lastErr = err
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.ref, err)
	}

	idx, agg := Compute(rows)
	if len(agg.MissingColumns) > 0 {
		c.logger.Warn("tracked columns not found in header",
			"range", c.ref.String(),
			"missing", agg.MissingColumns)
	}

	c.snap.Store(&Snapshot{
		Rows:        rows,
		Header:      idx,
		Aggregates:  agg,
		RefreshedAt: c.now(),
	})
	c.logger.Debug("aggregate snapshot refreshed",
		"rows", len(rows),
		"properties", agg.PropertyCount)
	return nil
}

func (c *Cache) lastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Cache) result(snap *Snapshot) Result {
	r := Result{}
	if err := c.lastError(); err != nil {
		r.LastError = err.Error()
	}
	if snap == nil {
		return r
	}
	age := c.now().Sub(snap.RefreshedAt)
	refreshedAt := snap.RefreshedAt
	r.Aggregates = snap.Aggregates
	r.Ready = true
	r.Stale = age >= c.ttl
	r.CacheAge = age
	r.CacheAgeSeconds = age.Seconds()
	r.RefreshedAt = &refreshedAt
	return r
}
