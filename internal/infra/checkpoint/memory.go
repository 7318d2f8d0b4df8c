// Package checkpoint provides CheckpointStore implementations: an in-process
// map, a directory of JSON files, and an LRU cache in front of either.
package checkpoint

import (
	"context"
	"errors"
	"sync"

	"taskguard/internal/domain/execution"
)

var errNilCheckpoint = errors.New("checkpoint is nil")

// MemoryStore keeps the latest checkpoint per task in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]execution.Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]execution.Checkpoint)}
}

func (s *MemoryStore) Save(ctx context.Context, cp *execution.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp == nil {
		return errNilCheckpoint
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cp.TaskID] = clone(cp)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, taskID string) (*execution.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.items[taskID]
	if !ok {
		return nil, nil
	}
	out := clone(&cp)
	return &out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, taskID)
	return nil
}

// Len returns the number of live checkpoints.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func clone(cp *execution.Checkpoint) execution.Checkpoint {
	out := *cp
	if cp.Data != nil {
		out.Data = append([]byte(nil), cp.Data...)
	}
	return out
}

var _ execution.CheckpointStore = (*MemoryStore)(nil)
