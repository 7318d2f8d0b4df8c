package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckpointRequiresTaskID(t *testing.T) {
	_, err := NewCheckpoint("  ", map[string]int{"a": 1}, time.Now())
	require.Error(t, err)
}

func TestNewCheckpointEncodesData(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cp, err := NewCheckpoint("research", map[string]any{"company": "Acme", "competitors": []string{}}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, "research", cp.TaskID)
	assert.Equal(t, now, cp.CreatedAt)
	assert.Equal(t, CheckpointVersion, cp.Version)

	var decoded struct {
		Company     string   `json:"company"`
		Competitors []string `json:"competitors"`
	}
	require.NoError(t, cp.Decode(&decoded))
	assert.Equal(t, "Acme", decoded.Company)
	assert.Empty(t, decoded.Competitors)
}

func TestDecodeEmptyCheckpoint(t *testing.T) {
	var cp *Checkpoint
	var v map[string]any
	require.Error(t, cp.Decode(&v))
	require.Error(t, (&Checkpoint{}).Decode(&v))
}

func TestWriteCheckpointSaves(t *testing.T) {
	store := &recordingStore{}
	cp, err := WriteCheckpoint(context.Background(), store, "analysis", map[string]int{"n": 1})
	require.NoError(t, err)

	assert.Equal(t, 1, store.saves)
	assert.Same(t, cp, store.cp)

	_, err = WriteCheckpoint(context.Background(), nil, "analysis", 1)
	require.Error(t, err)
}
