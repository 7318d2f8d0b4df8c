package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"taskguard/internal/domain/execution"
	"taskguard/internal/infra/filestore"
)

const timestampLayout = "20060102T150405.000000000Z"

// Entry describes the live checkpoint file for one task.
type Entry struct {
	TaskID    string
	Path      string
	CreatedAt time.Time
}

// FileStore writes each checkpoint to <dir>/<task>_<timestamp>.json and
// serves the newest file per task. Older files stay on disk as history until
// Delete is called for the task.
type FileStore struct {
	dir   string
	perm  os.FileMode
	mu    sync.RWMutex
	index map[string]Entry
}

// NewFileStore opens dir, creating it if needed, and indexes the newest
// checkpoint per task already present.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("checkpoint dir is required")
	}
	if err := filestore.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	s := &FileStore{dir: dir, perm: 0o644, index: make(map[string]Entry)}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Save(ctx context.Context, cp *execution.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp == nil {
		return errNilCheckpoint
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	path := filepath.Join(s.dir, fileName(cp.TaskID, cp.CreatedAt))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := filestore.WriteJSON(path, cp, s.perm); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", cp.TaskID, err)
	}
	s.index[cp.TaskID] = Entry{TaskID: cp.TaskID, Path: path, CreatedAt: cp.CreatedAt}
	return nil
}

// Load returns the newest checkpoint for taskID. An indexed file that has
// since disappeared reads as absent.
func (s *FileStore) Load(ctx context.Context, taskID string) (*execution.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok := s.index[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var cp execution.Checkpoint
	found, err := filestore.ReadJSON(entry.Path, &cp)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", taskID, err)
	}
	if !found {
		return nil, nil
	}
	return &cp, nil
}

// Delete removes every checkpoint file written for taskID.
func (s *FileStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, taskID)

	paths, err := s.filesFor(taskID)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove checkpoint %s: %w", path, err)
		}
	}
	return nil
}

// List returns the live checkpoint of every task, sorted by task id.
func (s *FileStore) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.index))
	for _, entry := range s.index {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// History returns every checkpoint file for taskID, oldest first.
func (s *FileStore) History(taskID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths, err := s.filesFor(taskID)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *FileStore) rebuildIndex() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan checkpoint dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		cp, ok := readHeader(path)
		if !ok {
			continue
		}
		current, exists := s.index[cp.TaskID]
		if exists && (cp.CreatedAt.Before(current.CreatedAt) ||
			(cp.CreatedAt.Equal(current.CreatedAt) && path < current.Path)) {
			continue
		}
		s.index[cp.TaskID] = Entry{TaskID: cp.TaskID, Path: path, CreatedAt: cp.CreatedAt}
	}
	return nil
}

// filesFor lists files written for taskID. The filename prefix narrows the
// scan; the decoded task id settles prefixes shared by other tasks.
func (s *FileStore) filesFor(taskID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint dir: %w", err)
	}
	prefix := sanitizeKey(taskID) + "_"
	var out []string
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, name)
		if cp, ok := readHeader(path); ok && cp.TaskID == taskID {
			out = append(out, path)
		}
	}
	return out, nil
}

func readHeader(path string) (execution.Checkpoint, bool) {
	var cp execution.Checkpoint
	found, err := filestore.ReadJSON(path, &cp)
	if err != nil || !found || cp.TaskID == "" {
		return execution.Checkpoint{}, false
	}
	return cp, true
}

func fileName(taskID string, at time.Time) string {
	return fmt.Sprintf("%s_%s.json", sanitizeKey(taskID), at.UTC().Format(timestampLayout))
}

func sanitizeKey(taskID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}
		return r
	}, taskID)
}

var _ execution.CheckpointStore = (*FileStore)(nil)
