// Package workspace manages the isolated job-registry directory used by one
// batch-parallel invocation to coordinate job submission and result
// collection.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
)

const resultsDir = "results"

// Workspace is an exclusively owned, per-invocation storage area. The path
// is keyed by the run seed so reruns land on the same directory; Create
// wipes any stale prior contents to keep reruns idempotent.
type Workspace struct {
	Path  string
	RunID string
}

// Create builds a fresh workspace under base for the given run seed. Any
// prior contents for that path are discarded first.
func Create(ctx context.Context, base string, seed int64) (*Workspace, error) {
	if base == "" {
		base = filepath.Join(os.TempDir(), "foldrun")
	}
	path := filepath.Join(base, fmt.Sprintf("registry-%d", seed))

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear stale job registry %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Join(path, resultsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job registry %s: %w", path, err)
	}

	w := &Workspace{Path: path, RunID: uuid.NewString()}
	ctxlog.FromContext(ctx).Debug("Job registry created.", "path", w.Path, "runID", w.RunID)
	return w, nil
}

// WriteResult persists one job's body output under its split key.
func (w *Workspace) WriteResult(key string, out model.BodyOutput) error {
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result for job %q: %w", key, err)
	}
	path := filepath.Join(w.Path, resultsDir, key+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write result for job %q: %w", key, err)
	}
	return nil
}

// ReadResult loads one job's persisted body output.
func (w *Workspace) ReadResult(key string) (model.BodyOutput, error) {
	raw, err := os.ReadFile(filepath.Join(w.Path, resultsDir, key+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read result for job %q: %w", key, err)
	}
	var out model.BodyOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode result for job %q: %w", key, err)
	}
	return out, nil
}
