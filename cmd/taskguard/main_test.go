package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskguard/internal/app/analysis"
	"taskguard/internal/domain/execution"
	"taskguard/internal/infra/checkpoint"
	jsonx "taskguard/internal/shared/json"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestRunCommandCompletesAndPersistsCheckpoints(t *testing.T) {
	dir := isolate(t)
	ws := filepath.Join(dir, "ws")
	request := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(request, []byte("company: Acme Corporation\nindustry: SaaS\n"), 0o644))

	out, err := execute(t, "run", request, "--workspace", ws, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis Complete!")
	assert.Contains(t, out, "100.00%")
	assert.Contains(t, out, "research -> analysis -> synthesis")

	_, err = os.Stat(filepath.Join(ws, analysis.ReportFile))
	require.NoError(t, err)

	out, err = execute(t, "checkpoints", "list", "--workspace", ws)
	require.NoError(t, err)
	for _, phase := range []string{"research", "analysis", "synthesis"} {
		assert.Contains(t, out, phase)
	}

	out, err = execute(t, "checkpoints", "show", "synthesis", "--workspace", ws)
	require.NoError(t, err)
	var cp execution.Checkpoint
	require.NoError(t, jsonx.Unmarshal([]byte(out), &cp))
	assert.Equal(t, "synthesis", cp.TaskID)

	_, err = execute(t, "checkpoints", "delete", "synthesis", "--workspace", ws)
	require.NoError(t, err)
	_, err = execute(t, "checkpoints", "show", "synthesis", "--workspace", ws)
	require.Error(t, err)
}

func TestRunCommandJSONAndFailure(t *testing.T) {
	dir := isolate(t)
	request := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(request, []byte(`
company: Acme
industry: SaaS
retries: 2
fail_attempts:
  analysis: 2
`), 0o644))

	out, err := execute(t, "run", request, "--workspace", filepath.Join(dir, "ws"), "--json", "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrInjectedFailure))

	jsonStart := strings.Index(out, "{")
	require.GreaterOrEqual(t, jsonStart, 0)
	var summary map[string]any
	require.NoError(t, jsonx.Unmarshal([]byte(out[jsonStart:]), &summary))
	assert.Equal(t, "failed", summary["status"])
	perf := summary["performance"].(map[string]any)
	assert.Equal(t, "50.00%", perf["success_rate"])
}

func TestRunCommandFlagsOnly(t *testing.T) {
	dir := isolate(t)
	out, err := execute(t, "run", "--company", "Acme", "--industry", "SaaS",
		"--workspace", filepath.Join(dir, "ws"), "--checkpoint-store", "memory", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis Complete!")

	_, err = execute(t, "checkpoints", "list", "--checkpoint-store", "memory")
	require.Error(t, err)
}

func TestRunCommandRequiresCompany(t *testing.T) {
	isolate(t)
	_, err := execute(t, "run", "--industry", "SaaS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company is required")
}

func TestPrintCheckpoints(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printCheckpoints(&buf, "/tmp/cp", nil)
	assert.Equal(t, "No checkpoints in /tmp/cp\n", buf.String())

	buf.Reset()
	printCheckpoints(&buf, "/tmp/cp", []checkpoint.Entry{{
		TaskID:    "research",
		Path:      "/tmp/cp/research_x.json",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "PHASE"))
	assert.Contains(t, lines[1], "/tmp/cp/research_x.json")
}
