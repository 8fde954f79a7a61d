package strategy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/foldrun/internal/cluster"
	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/workspace"
)

// ParallelInfo is the strategy-specific output of a batch-parallel run.
type ParallelInfo struct {
	Backend   string `json:"backend"`
	Workspace string `json:"workspace"`
	RunID     string `json:"run_id"`
	Jobs      int    `json:"jobs"`
}

// Parallel maps one job per split and submits the whole batch to the local
// worker pool or the external job queue, blocking until every job reports
// completion. Result keys are restored to match split keys regardless of
// completion order. The job-registry workspace is recreated from empty on
// every call so reruns are idempotent.
func (s *Runner) Parallel(ctx context.Context, c *control.Control, splits *model.SplitSet) (*model.ExecutionOutput, error) {
	logger := ctxlog.FromContext(ctx).With("strategy", TypeParallel)

	if splits == nil || splits.Len() == 0 {
		return nil, fmt.Errorf("parallel execution requires a non-empty split set")
	}
	spec := c.Execution
	spec.Normalize()
	if err := spec.Resources.Validate(spec.Backend); err != nil {
		return nil, err
	}

	registryDir := ""
	if spec.Resources != nil {
		registryDir = spec.Resources.RegistryDir
	}
	ws, err := workspace.Create(ctx, registryDir, c.Seed)
	if err != nil {
		return nil, err
	}

	jobs := prepareJobs(c, splits)
	logger.Info("Submitting batch.", "backend", spec.Backend, "jobs", len(jobs), "workspace", ws.Path)

	var results map[string]model.BodyOutput
	switch spec.Backend {
	case control.BackendLocal:
		results, err = s.runLocalBatch(ctx, ws, spec.Workers, jobs)
	case control.BackendQueue:
		results, err = s.runQueueBatch(ctx, ws, spec.Queue, spec.Resources, jobs)
	default:
		err = fmt.Errorf("unknown execution backend %q", spec.Backend)
	}
	if err != nil {
		return nil, err
	}

	// Invariant: result keys always match split keys.
	for _, key := range splits.Keys() {
		if _, ok := results[key]; !ok {
			return nil, fmt.Errorf("backend %q returned no result for split %q", spec.Backend, key)
		}
	}
	logger.Info("Batch finished.", "jobs", len(jobs))

	return &model.ExecutionOutput{
		ExecutionType:    TypeParallel,
		WorkflowResults:  results,
		ContinueWorkflow: true,
		Specific: &ParallelInfo{
			Backend:   spec.Backend,
			Workspace: ws.Path,
			RunID:     ws.RunID,
			Jobs:      len(jobs),
		},
	}, nil
}

// runLocalBatch fans the jobs out over a bounded goroutine pool. The group
// carries no shared cancellation: once submitted, every job in the batch
// runs to completion, and the first error fails the whole call afterwards.
// No partial results are exposed.
func (s *Runner) runLocalBatch(ctx context.Context, ws *workspace.Workspace, workers int, jobs []job) (map[string]model.BodyOutput, error) {
	if workers < 1 {
		return nil, fmt.Errorf("local backend requires at least one worker, got %d", workers)
	}

	var g errgroup.Group
	g.SetLimit(workers)

	outs := make([]model.BodyOutput, len(jobs))
	for i, j := range jobs {
		g.Go(func() error {
			out, err := s.runJob(ctx, j.Control)
			if err != nil {
				return fmt.Errorf("job %q: %w", j.Key, err)
			}
			if err := ws.WriteResult(j.Key, out); err != nil {
				return err
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string]model.BodyOutput, len(jobs))
	for i, j := range jobs {
		results[j.Key] = outs[i]
	}
	return results, nil
}

// runQueueBatch delegates the batch to the external scheduler and mirrors
// the returned results into the workspace for auditability.
func (s *Runner) runQueueBatch(ctx context.Context, ws *workspace.Workspace, queue *control.QueueSpec, resources *control.ResourceSpec, jobs []job) (map[string]model.BodyOutput, error) {
	submitted := make([]cluster.Job, len(jobs))
	for i, j := range jobs {
		submitted[i] = cluster.Job{Key: j.Key, Control: j.Control}
	}
	results, err := cluster.Submit(ctx, queue, resources, ws.RunID, submitted)
	if err != nil {
		return nil, err
	}
	for key, out := range results {
		if err := ws.WriteResult(key, out); err != nil {
			return nil, err
		}
	}
	return results, nil
}
