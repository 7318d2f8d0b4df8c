package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	jsonx "taskguard/internal/shared/json"
)

// CheckpointVersion is bumped when the persisted layout changes.
const CheckpointVersion = 1

// Checkpoint is the last-known-good snapshot for a task identifier.
type Checkpoint struct {
	ID        string           `json:"id"`
	TaskID    string           `json:"task_id"`
	Data      jsonx.RawMessage `json:"data"`
	CreatedAt time.Time        `json:"created_at"`
	Version   int              `json:"version"`
}

// Decode unmarshals the snapshot into v.
func (c *Checkpoint) Decode(v any) error {
	if c == nil || len(c.Data) == 0 {
		return errors.New("checkpoint has no data")
	}
	return jsonx.Unmarshal(c.Data, v)
}

// CheckpointStore persists at most one live checkpoint per task identifier.
// Load returns (nil, nil) when nothing is stored for the key.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, taskID string) (*Checkpoint, error)
	Delete(ctx context.Context, taskID string) error
}

// NewCheckpoint snapshots data for taskID.
func NewCheckpoint(taskID string, data any, now time.Time) (*Checkpoint, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("checkpoint task id is required")
	}
	raw, err := jsonx.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint %s: %w", taskID, err)
	}
	return &Checkpoint{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Data:      raw,
		CreatedAt: now,
		Version:   CheckpointVersion,
	}, nil
}

// WriteCheckpoint snapshots data and saves it, replacing any previous
// checkpoint for taskID.
func WriteCheckpoint(ctx context.Context, store CheckpointStore, taskID string, data any) (*Checkpoint, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is nil")
	}
	cp, err := NewCheckpoint(taskID, data, time.Now())
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("save checkpoint %s: %w", taskID, err)
	}
	return cp, nil
}
