package checkpoint

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"taskguard/internal/domain/execution"
)

const defaultCacheSize = 64

// CachedStore fronts another store with an LRU of recent checkpoints. Writes
// go through to the backing store before the cache is updated.
type CachedStore struct {
	next  execution.CheckpointStore
	cache *lru.Cache[string, execution.Checkpoint]
}

// NewCachedStore wraps next. A non-positive size uses the default.
func NewCachedStore(next execution.CheckpointStore, size int) (*CachedStore, error) {
	if next == nil {
		return nil, errors.New("cached store needs a backing store")
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, execution.Checkpoint](size)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

func (s *CachedStore) Save(ctx context.Context, cp *execution.Checkpoint) error {
	if cp == nil {
		return errNilCheckpoint
	}
	if err := s.next.Save(ctx, cp); err != nil {
		s.cache.Remove(cp.TaskID)
		return err
	}
	s.cache.Add(cp.TaskID, clone(cp))
	return nil
}

func (s *CachedStore) Load(ctx context.Context, taskID string) (*execution.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(taskID); ok {
		out := clone(&cached)
		return &out, nil
	}
	cp, err := s.next.Load(ctx, taskID)
	if err != nil || cp == nil {
		return cp, err
	}
	s.cache.Add(taskID, clone(cp))
	return cp, nil
}

func (s *CachedStore) Delete(ctx context.Context, taskID string) error {
	s.cache.Remove(taskID)
	return s.next.Delete(ctx, taskID)
}

// Cached reports whether taskID is currently held in the cache.
func (s *CachedStore) Cached(taskID string) bool {
	return s.cache.Contains(taskID)
}

var _ execution.CheckpointStore = (*CachedStore)(nil)
