package blobstore

import (
	"context"
	"time"
)

// LatencyStore wraps a Store with a fixed artificial delay before every
// call, for exercising the upload/restore pipelines' backpressure
// handling (the engine's --latency / CAIRN_LATENCY flag) without a real
// slow backend.
type LatencyStore struct {
	inner Store
	delay time.Duration
}

// WithLatency wraps store so every call sleeps delay first. A zero
// delay returns store unwrapped.
func WithLatency(store Store, delay time.Duration) Store {
	if delay <= 0 {
		return store
	}
	return &LatencyStore{inner: store, delay: delay}
}

func (l *LatencyStore) sleep(ctx context.Context) error {
	t := time.NewTimer(l.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LatencyStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := l.sleep(ctx); err != nil {
		return false, err
	}
	return l.inner.Exists(ctx, key)
}

func (l *LatencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := l.sleep(ctx); err != nil {
		return nil, err
	}
	return l.inner.Get(ctx, key)
}

func (l *LatencyStore) TryGet(ctx context.Context, key string) ([]byte, bool, error) {
	if err := l.sleep(ctx); err != nil {
		return nil, false, err
	}
	return l.inner.TryGet(ctx, key)
}

func (l *LatencyStore) Put(ctx context.Context, key string, data []byte) error {
	if err := l.sleep(ctx); err != nil {
		return err
	}
	return l.inner.Put(ctx, key, data)
}

func (l *LatencyStore) Delete(ctx context.Context, key string) error {
	if err := l.sleep(ctx); err != nil {
		return err
	}
	return l.inner.Delete(ctx, key)
}

func (l *LatencyStore) DeleteMany(ctx context.Context, keys []string) error {
	if err := l.sleep(ctx); err != nil {
		return err
	}
	return l.inner.DeleteMany(ctx, keys)
}

func (l *LatencyStore) Keys(ctx context.Context, prefix string) (KeyIterator, error) {
	if err := l.sleep(ctx); err != nil {
		return nil, err
	}
	return l.inner.Keys(ctx, prefix)
}
