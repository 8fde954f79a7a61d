package strategy

import (
	"context"
	"fmt"

	"github.com/vk/foldrun/internal/checkpoint"
	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/model"
)

// Handoff persists the configuration and split set as a checkpoint instead of
// running anything, then tells the caller not to continue the workflow. An
// external scheduler executes the splits; a later process resumes from the
// checkpoint directory.
func (s *Runner) Handoff(ctx context.Context, c *control.Control, splits *model.SplitSet) (*model.ExecutionOutput, error) {
	if c.Execution.HandoffDir == "" {
		return nil, fmt.Errorf("handoff execution requires handoff_dir")
	}
	out := &model.SplitOutput{
		SplitType: c.Split.Engine,
		Splits:    splits,
		Seed:      c.SplitSeed,
	}
	return checkpoint.PrepareHandoff(ctx, c, out, c.Execution.HandoffDir)
}
