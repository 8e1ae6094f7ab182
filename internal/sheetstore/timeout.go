package sheetstore

import (
	"context"
	"fmt"
	"time"
)

// DefaultCallTimeout 单次调用默认超时
const DefaultCallTimeout = 30 * time.Second

// WithTimeout 为每次调用加上超时；超时按普通错误返回，不会阻塞调用方
func WithTimeout(next RangeStore, d time.Duration) RangeStore {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	return &timeoutStore{next: next, timeout: d}
}

type timeoutStore struct {
	next    RangeStore
	timeout time.Duration
}

type callResult struct {
	m   Matrix
	err error
}

func (t *timeoutStore) call(ctx context.Context, op string, ref RangeRef, fn func(ctx context.Context) (Matrix, error)) (Matrix, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		m, err := fn(ctx)
		done <- callResult{m: m, err: err}
	}()

	select {
	case r := <-done:
		return r.m, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s %s: %w", op, ref, ctx.Err())
	}
}

func (t *timeoutStore) ReadRange(ctx context.Context, ref RangeRef) (Matrix, error) {
	return t.call(ctx, "read", ref, func(ctx context.Context) (Matrix, error) {
		return t.next.ReadRange(ctx, ref)
	})
}

func (t *timeoutStore) AppendRow(ctx context.Context, ref RangeRef, row []string) error {
	_, err := t.call(ctx, "append", ref, func(ctx context.Context) (Matrix, error) {
		return nil, t.next.AppendRow(ctx, ref, row)
	})
	return err
}

func (t *timeoutStore) WriteRange(ctx context.Context, ref RangeRef, values Matrix) error {
	_, err := t.call(ctx, "write", ref, func(ctx context.Context) (Matrix, error) {
		return nil, t.next.WriteRange(ctx, ref, values)
	})
	return err
}

func (t *timeoutStore) ClearRange(ctx context.Context, ref RangeRef) error {
	_, err := t.call(ctx, "clear", ref, func(ctx context.Context) (Matrix, error) {
		return nil, t.next.ClearRange(ctx, ref)
	})
	return err
}
