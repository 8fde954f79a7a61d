// Package testutil provides shared helpers for workflow-level tests: a
// thread-safe log buffer, a temp-dir workflow harness, and a stub engine
// module.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Workspace is a temp directory holding the input files of one test workflow.
type Workspace struct {
	Dir          string
	WorkflowPath string
	DataPath     string
}

// NewWorkspace creates a temp workflow directory with the given HCL source
// written to workflow.hcl. The workflow can refer to the data file as
// "data.json".
func NewWorkspace(t *testing.T, workflowHCL string) *Workspace {
	t.Helper()
	dir := t.TempDir()

	ws := &Workspace{
		Dir:          dir,
		WorkflowPath: filepath.Join(dir, "workflow.hcl"),
		DataPath:     filepath.Join(dir, "data.json"),
	}
	require.NoError(t, os.WriteFile(ws.WorkflowPath, []byte(workflowHCL), 0o644))
	return ws
}

// WriteData serializes v as JSON into the workspace's data.json.
func (w *Workspace) WriteData(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(w.DataPath, raw, 0o644))
}

// LinearData builds a small deterministic x/y dataset of n rows in the
// columnar frame layout, with y roughly linear in x.
func LinearData(n int) map[string]any {
	rows := make([][]float64, n)
	for i := range rows {
		x := float64(i)
		rows[i] = []float64{x, 2*x + 1 + 0.1*float64(i%3)}
	}
	return map[string]any{
		"columns": []string{"x", "y"},
		"rows":    rows,
	}
}
