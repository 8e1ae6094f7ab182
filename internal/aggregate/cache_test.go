package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// countingStore 统计读取次数，可阻塞或注入失败
type countingStore struct {
	*sheetstore.MemoryStore
	reads atomic.Int32
	gate  chan struct{}
	fail  atomic.Bool
}

func (s *countingStore) ReadRange(ctx context.Context, ref sheetstore.RangeRef) (sheetstore.Matrix, error) {
	s.reads.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.fail.Load() {
		return nil, errors.New("sheets unavailable")
	}
	return s.MemoryStore.ReadRange(ctx, ref)
}

var mainRef = sheetstore.Ref("pme", "MAIN", "A:ZZ")

func newTestCache(t *testing.T, clock *fakeClock) (*Cache, *countingStore) {
	t.Helper()

	mem := sheetstore.NewMemoryStore()
	mem.SetTab("pme", "MAIN", sheetstore.Matrix{
		{"REID", "GROSS_RCPTS", "STATUS"},
		{"P1", "$1,000", "Active"},
		{"P2", "500", "Vacant"},
	})
	store := &countingStore{MemoryStore: mem}
	c := NewCache(Options{
		Store:  store,
		Ref:    mainRef,
		TTL:    5 * time.Minute,
		Now:    clock.Now,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return c, store
}

func TestCacheNoFetchWithinTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c, store := newTestCache(t, clock)
	ctx := context.Background()

	first := c.Get(ctx)
	if !first.Ready || first.Aggregates.GrossRcptsTotal != 1500 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if store.reads.Load() != 1 {
		t.Fatalf("reads=%d, want 1", store.reads.Load())
	}

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute - time.Second)
		c.Get(ctx)
	}
	if store.reads.Load() != 1 {
		t.Fatalf("fetched within TTL: reads=%d", store.reads.Load())
	}

	clock.Advance(5 * time.Second) // 总计恰好 5 分钟
	c.Get(ctx)
	if store.reads.Load() != 2 {
		t.Fatalf("expected refresh at TTL boundary, reads=%d", store.reads.Load())
	}
}

func TestCacheSingleFlight(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c, store := newTestCache(t, clock)
	store.gate = make(chan struct{})

	const callers = 20
	var wg sync.WaitGroup
	results := make([]Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background())
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.reads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	if store.reads.Load() != 1 {
		t.Fatalf("reads=%d, want exactly 1", store.reads.Load())
	}
	for i, r := range results {
		if !r.Ready {
			t.Fatalf("caller %d saw not-ready result", i)
		}
	}
}

func TestCacheServesStaleOnFailure(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c, store := newTestCache(t, clock)
	ctx := context.Background()

	warm := c.Get(ctx)
	store.fail.Store(true)
	clock.Advance(6 * time.Minute)

	got := c.Get(ctx)
	if !got.Ready {
		t.Fatalf("stale snapshot should still be served")
	}
	if !got.Stale {
		t.Fatalf("result should be marked stale")
	}
	if got.Aggregates != warm.Aggregates {
		t.Fatalf("previous aggregates should be served as-is")
	}
	if got.LastError == "" {
		t.Fatalf("last error should be reported")
	}
	if store.reads.Load() != 2 {
		t.Fatalf("reads=%d, want 2", store.reads.Load())
	}

	// 恢复后下一次读取重新刷新
	store.fail.Store(false)
	recovered := c.Get(ctx)
	if recovered.Stale || recovered.LastError != "" {
		t.Fatalf("expected fresh result after recovery: %+v", recovered)
	}
}

func TestCacheNotReadyWhenNeverWarmed(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c, store := newTestCache(t, clock)
	store.fail.Store(true)

	got := c.Get(context.Background())
	if got.Ready || got.Aggregates != nil {
		t.Fatalf("expected not-ready result, got %+v", got)
	}
	if _, err := c.Snapshot(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Snapshot err=%v, want ErrNotReady", err)
	}
	if peek := c.Peek(); peek.Ready {
		t.Fatalf("Peek should report not ready")
	}
}

func TestCacheForceRefreshReplacesSnapshot(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c, store := newTestCache(t, clock)
	ctx := context.Background()

	before, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	store.SetTab("pme", "MAIN", sheetstore.Matrix{
		{"REID", "GROSS_RCPTS", "STATUS"},
		{"P9", "42", "Active"},
	})
	if err := c.ForceRefresh(ctx); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}

	after, _ := c.Snapshot(ctx)
	if after == before {
		t.Fatalf("snapshot should be replaced, not mutated")
	}
	if after.Aggregates.PropertyCount != 1 || after.Aggregates.GrossRcptsTotal != 42 {
		t.Fatalf("aggregates should come only from the new rows: %+v", after.Aggregates)
	}
	if before.Aggregates.PropertyCount != 2 {
		t.Fatalf("previous snapshot was mutated: %+v", before.Aggregates)
	}
	if store.reads.Load() != 2 {
		t.Fatalf("reads=%d, want 2", store.reads.Load())
	}
}

func TestCacheBackgroundRefresh(t *testing.T) {
	t.Parallel()

	mem := sheetstore.NewMemoryStore()
	mem.SetTab("pme", "MAIN", sheetstore.Matrix{{"REID"}, {"P1"}})
	store := &countingStore{MemoryStore: mem}
	c := NewCache(Options{
		Store:  store,
		Ref:    mainRef,
		TTL:    10 * time.Millisecond,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	c.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for store.reads.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	c.Shutdown()

	if store.reads.Load() < 3 {
		t.Fatalf("background refresh did not tick: reads=%d", store.reads.Load())
	}
	if !c.Peek().Ready {
		t.Fatalf("cache should be warm after background refresh")
	}
}
