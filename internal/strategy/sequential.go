package strategy

import (
	"context"
	"fmt"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
)

// Sequential runs the pipeline body once per split, synchronously and in
// split order. A failure in any split aborts the whole call; there is no
// partial-result recovery at this layer.
func (s *Runner) Sequential(ctx context.Context, c *control.Control, splits *model.SplitSet) (*model.ExecutionOutput, error) {
	logger := ctxlog.FromContext(ctx).With("strategy", TypeSequential)

	if splits == nil || splits.Len() == 0 {
		return nil, fmt.Errorf("sequential execution requires a non-empty split set")
	}

	results := make(map[string]model.BodyOutput, splits.Len())
	for _, j := range prepareJobs(c, splits) {
		logger.Debug("Running pipeline body.", "split", j.Key)
		out, err := s.runJob(ctx, j.Control)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", j.Key, err)
		}
		results[j.Key] = out
	}
	logger.Info("Sequential execution finished.", "splits", splits.Len())

	return &model.ExecutionOutput{
		ExecutionType:    TypeSequential,
		WorkflowResults:  results,
		ContinueWorkflow: true,
	}, nil
}
