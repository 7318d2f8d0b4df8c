// Package pipeline runs ordered phases through the recovery executor and
// checkpoints every phase that produces a usable result.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taskguard/internal/infra/filestore"
)

const (
	DirResearch    = "research"
	DirAnalysis    = "analysis"
	DirSynthesis   = "synthesis"
	DirOutputs     = "outputs"
	DirCheckpoints = "checkpoints"
)

// WorkspaceDirs are created under every workspace root.
var WorkspaceDirs = []string{DirResearch, DirAnalysis, DirSynthesis, DirOutputs, DirCheckpoints}

// Workspace is a directory tree that phases read from and write to.
type Workspace struct {
	root string
}

// NewWorkspace resolves root (expanding ~ and environment variables) and
// provisions the standard subdirectories.
func NewWorkspace(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	resolved := filestore.ResolvePath(root, "")
	for _, dir := range WorkspaceDirs {
		if err := filestore.EnsureDir(filepath.Join(resolved, dir)); err != nil {
			return nil, fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return &Workspace{root: resolved}, nil
}

func (w *Workspace) Root() string { return w.root }

// Path joins parts under the workspace root.
func (w *Workspace) Path(parts ...string) string {
	return filepath.Join(append([]string{w.root}, parts...)...)
}

func (w *Workspace) CheckpointDir() string { return w.Path(DirCheckpoints) }

// WriteJSON writes v as indented JSON to rel under the root.
func (w *Workspace) WriteJSON(rel string, v any) (string, error) {
	path := w.Path(rel)
	if err := filestore.WriteJSON(path, v, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return path, nil
}

// ReadJSON decodes rel into v. A missing file is an error.
func (w *Workspace) ReadJSON(rel string, v any) error {
	found, err := filestore.ReadJSON(w.Path(rel), v)
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	if !found {
		return fmt.Errorf("read %s: %w", rel, os.ErrNotExist)
	}
	return nil
}

// WriteFile writes raw bytes to rel under the root.
func (w *Workspace) WriteFile(rel string, data []byte) (string, error) {
	path := w.Path(rel)
	if err := filestore.AtomicWrite(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return path, nil
}
