// Package checkpoint implements the handoff/resume protocol: serializing
// pending workflow state to durable storage before execution leaves the
// process, and validating and reconstructing that state when a later process
// picks the workflow back up.
//
// The persisted layout is three artifacts in one directory: the serialized
// control configuration, the serialized split set, and a plain-text count of
// pending splits. Every resume path reconstructs the full resume object from
// exactly these three.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
)

// Artifact file names of the persisted checkpoint layout.
const (
	ControlFile = "control.yaml"
	SplitsFile  = "splits.json"
	PendingFile = "pending.txt"
	ResultsDir  = "results"
)

// ExecutionType identifies handed-off execution in execution outputs.
const ExecutionType = "handoff"

// HandoffInfo is the strategy-specific output of a handoff: where the
// pending state lives and how many splits await external execution.
type HandoffInfo struct {
	Dir     string `json:"dir"`
	Pending int    `json:"pending"`
}

// Resume is the self-sufficient snapshot reintroduced into a later process.
// It must satisfy the same shape invariants as a live in-process result
// before the post-execution phase may consume it.
type Resume struct {
	Control         *control.Control
	SplitOutput     *model.SplitOutput
	ExecutionOutput *model.ExecutionOutput
}

// PostFunc is the post-execution collaborator (aggregation and reporting)
// that consumes a validated resume exactly as it would a live strategy
// return.
type PostFunc func(ctx context.Context, c *control.Control, splits *model.SplitOutput, exec *model.ExecutionOutput) error

// PrepareHandoff persists the configuration and split set to dir and returns
// the deferred execution output. This is the only path that legitimately
// returns ContinueWorkflow=false.
func PrepareHandoff(ctx context.Context, c *control.Control, splits *model.SplitOutput, dir string) (*model.ExecutionOutput, error) {
	logger := ctxlog.FromContext(ctx)

	if splits == nil || splits.Splits.Len() == 0 {
		return nil, fmt.Errorf("handoff requires a non-empty split set")
	}
	if dir == "" {
		return nil, fmt.Errorf("handoff requires a target directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create handoff directory %s: %w", dir, err)
	}

	rawControl, err := yaml.Marshal(c.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize control configuration: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ControlFile), rawControl, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", ControlFile, err)
	}

	rawSplits, err := json.MarshalIndent(splits, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize split set: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SplitsFile), rawSplits, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", SplitsFile, err)
	}

	pending := splits.Splits.Len()
	if err := os.WriteFile(filepath.Join(dir, PendingFile), []byte(strconv.Itoa(pending)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", PendingFile, err)
	}

	logger.Info("Workflow handed off to external execution.", "dir", dir, "pendingSplits", pending)
	return &model.ExecutionOutput{
		ExecutionType:    ExecutionType,
		WorkflowResults:  map[string]model.BodyOutput{},
		ContinueWorkflow: false,
		Specific:         &HandoffInfo{Dir: dir, Pending: pending},
	}, nil
}

// Load reconstructs a resume object from the three persisted artifacts. Any
// per-split results the external scheduler left under results/ are picked
// up; splits with no result file map to empty outputs under the same keys.
func Load(ctx context.Context, dir string) (*Resume, error) {
	logger := ctxlog.FromContext(ctx)

	rawControl, err := os.ReadFile(filepath.Join(dir, ControlFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ControlFile, err)
	}
	var snap control.Snapshot
	if err := yaml.Unmarshal(rawControl, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ControlFile, err)
	}
	c, err := control.FromSnapshot(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild control configuration: %w", err)
	}

	rawSplits, err := os.ReadFile(filepath.Join(dir, SplitsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", SplitsFile, err)
	}
	var splits model.SplitOutput
	if err := json.Unmarshal(rawSplits, &splits); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", SplitsFile, err)
	}

	rawPending, err := os.ReadFile(filepath.Join(dir, PendingFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", PendingFile, err)
	}
	pending, err := strconv.Atoi(strings.TrimSpace(string(rawPending)))
	if err != nil {
		return nil, fmt.Errorf("malformed pending count in %s: %w", PendingFile, err)
	}
	if got := splits.Splits.Len(); pending != got {
		return nil, fmt.Errorf("pending count %d does not match persisted split set size %d", pending, got)
	}

	results := make(map[string]model.BodyOutput, splits.Splits.Len())
	loaded := 0
	for _, key := range splits.Splits.Keys() {
		raw, err := os.ReadFile(filepath.Join(dir, ResultsDir, key+".json"))
		if errors.Is(err, os.ErrNotExist) {
			results[key] = model.BodyOutput{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read result for split %q: %w", key, err)
		}
		var out model.BodyOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode result for split %q: %w", key, err)
		}
		results[key] = out
		loaded++
	}
	logger.Info("Checkpoint loaded.", "dir", dir, "splits", splits.Splits.Len(), "resultsFound", loaded)

	return &Resume{
		Control:     c,
		SplitOutput: &splits,
		ExecutionOutput: &model.ExecutionOutput{
			ExecutionType:    ExecutionType,
			WorkflowResults:  results,
			ContinueWorkflow: true,
		},
	}, nil
}

// Validate asserts the full resume shape before it may be consumed. Every
// missing or malformed field is reported together rather than one at a time.
func Validate(r *Resume) error {
	if r == nil {
		return fmt.Errorf("resume object is nil")
	}

	var problems []error
	if r.Control == nil {
		problems = append(problems, fmt.Errorf("control is missing"))
	}
	if r.SplitOutput == nil {
		problems = append(problems, fmt.Errorf("split_output is missing"))
	} else {
		if r.SplitOutput.Splits == nil || r.SplitOutput.Splits.Len() == 0 {
			problems = append(problems, fmt.Errorf("split_output.splits must be a non-empty ordered mapping"))
		}
		if r.SplitOutput.SplitType == "" {
			problems = append(problems, fmt.Errorf("split_output.split_type is missing"))
		}
	}
	if r.ExecutionOutput == nil {
		problems = append(problems, fmt.Errorf("execution_output is missing"))
	} else {
		if r.ExecutionOutput.WorkflowResults == nil {
			problems = append(problems, fmt.Errorf("execution_output.workflow_results must be a mapping"))
		}
		if r.ExecutionOutput.ExecutionType == "" {
			problems = append(problems, fmt.Errorf("execution_output.execution_type is missing"))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("resume validation failed: %w", errors.Join(problems...))
	}
	return nil
}

// Run validates the resume object and feeds it into the post-execution phase
// exactly as if a normal in-process execution strategy had just returned.
func Run(ctx context.Context, r *Resume, post PostFunc) error {
	if err := Validate(r); err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("no post-execution phase provided")
	}
	return post(ctx, r.Control, r.SplitOutput, r.ExecutionOutput)
}
