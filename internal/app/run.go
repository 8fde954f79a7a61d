package app

import (
	"context"
	"fmt"

	"github.com/vk/foldrun/internal/checkpoint"
	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/postrun"
)

// Run executes the main application logic: either a fresh workflow run or a
// checkpoint resume, both ending in the same post-execution phase.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.ResumeDir != "" {
		return a.resume(ctx)
	}

	c, err := control.LoadPath(ctx, a.config.WorkflowPath)
	if err != nil {
		return err
	}
	if a.config.Workers > 0 {
		c.Execution.Workers = a.config.Workers
	}
	if err := c.LoadData(); err != nil {
		return err
	}
	if c.Data == nil {
		return fmt.Errorf("workflow %q names no data file", c.Name)
	}

	splitOut, err := a.generateSplits(ctx, c)
	if err != nil {
		return err
	}

	exec, err := a.registry.Execution(c.Execution.Strategy)
	if err != nil {
		return err
	}
	a.logger.Info("Starting execution.", "workflow", c.Name, "strategy", c.Execution.Strategy, "splits", splitOut.Splits.Len())
	execOut, err := exec(ctx, c, splitOut.Splits)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	if !execOut.ContinueWorkflow {
		a.logger.Info("Workflow deferred; resume it once external execution finishes.",
			"resumeDir", c.Execution.HandoffDir)
		return nil
	}

	summary, err := a.postProcess(ctx, c, splitOut, execOut)
	if err != nil {
		return err
	}
	a.logger.Info("Workflow finished.", "workflow", c.Name, "metrics", summary.MetricNames())
	return nil
}

// resume reloads a handed-off workflow from its checkpoint directory and
// feeds it straight into the post-execution phase.
func (a *App) resume(ctx context.Context) error {
	r, err := checkpoint.Load(ctx, a.config.ResumeDir)
	if err != nil {
		return err
	}
	if err := r.Control.LoadData(); err != nil {
		return err
	}
	return checkpoint.Run(ctx, r, func(ctx context.Context, c *control.Control, splits *model.SplitOutput, exec *model.ExecutionOutput) error {
		summary, err := a.postProcess(ctx, c, splits, exec)
		if err != nil {
			return err
		}
		a.logger.Info("Resumed workflow finished.", "workflow", c.Name, "metrics", summary.MetricNames())
		return nil
	})
}

// generateSplits runs the workflow's split engine with its parameters merged
// over the engine defaults.
func (a *App) generateSplits(ctx context.Context, c *control.Control) (*model.SplitOutput, error) {
	split, err := a.registry.Split(c.Split.Engine)
	if err != nil {
		return nil, err
	}
	sc := c.Clone()
	sc.Split.Params = control.Merge(sc.Split.Params, a.registry.Defaults(c.Split.Engine))
	out, err := split(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("split %q: %w", c.Split.Engine, err)
	}
	if out == nil || out.Splits == nil || out.Splits.Len() == 0 {
		return nil, fmt.Errorf("split %q produced no splits", c.Split.Engine)
	}
	return out, nil
}

func (a *App) postProcess(ctx context.Context, c *control.Control, splits *model.SplitOutput, exec *model.ExecutionOutput) (*model.RunSummary, error) {
	return postrun.Process(ctx, a.registry, c, splits, exec)
}
