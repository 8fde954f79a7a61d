// Package postrun implements the post-execution phase: aggregating per-split
// metrics into a run summary and dispatching it to the configured report and
// publish engines. It consumes live strategy results and resumed checkpoints
// through the same entry point.
package postrun

import (
	"context"
	"fmt"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/stability"
)

// Process aggregates the execution results into a run summary and runs every
// configured report and publish engine over it.
//
// Metrics come from each split's body output. A split whose output carries no
// metrics table falls back to the workflow's evaluation engine, re-run with
// that split bound; if no evaluation engine is configured either, the split
// is summarized without metrics.
func Process(ctx context.Context, reg *engine.Registry, c *control.Control, splits *model.SplitOutput, exec *model.ExecutionOutput) (*model.RunSummary, error) {
	logger := ctxlog.FromContext(ctx)

	if splits == nil || splits.Splits == nil {
		return nil, fmt.Errorf("post-execution requires a split set")
	}
	if exec == nil || exec.WorkflowResults == nil {
		return nil, fmt.Errorf("post-execution requires execution results")
	}

	summary := &model.RunSummary{
		Workflow:      c.Name,
		ExecutionType: exec.ExecutionType,
		Metrics:       make(map[string]*model.MetricSummary),
	}

	for key := range exec.WorkflowResults {
		summary.SplitKeys = append(summary.SplitKeys, key)
	}
	orderKeys(summary.SplitKeys, splits.Splits)

	for _, key := range summary.SplitKeys {
		metrics := exec.WorkflowResults[key].Metrics()
		if metrics == nil && c.Eval.Engine != "" {
			var err error
			if metrics, err = evaluateSplit(ctx, reg, c, splits.Splits, key); err != nil {
				return nil, err
			}
		}
		if metrics == nil {
			logger.Warn("Split has no metrics and no evaluation engine is configured.", "split", key)
			continue
		}
		for name, value := range metrics {
			ms, ok := summary.Metrics[name]
			if !ok {
				ms = &model.MetricSummary{PerSplit: make(map[string]float64)}
				summary.Metrics[name] = ms
			}
			ms.PerSplit[key] = value
		}
	}

	for _, name := range summary.MetricNames() {
		ms := summary.Metrics[name]
		values := make([]float64, 0, len(ms.PerSplit))
		for _, key := range summary.SplitKeys {
			if v, ok := ms.PerSplit[key]; ok {
				values = append(values, v)
			}
		}
		ms.Mean = stability.Mean(values)
		ms.SD = stability.SD(values)
	}
	logger.Info("Run summarized.", "workflow", c.Name, "splits", len(summary.SplitKeys), "metrics", summary.MetricNames())

	if err := dispatch(ctx, reg, c, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// evaluateSplit re-runs the workflow's evaluation engine with one split bound
// to recover metrics for it.
func evaluateSplit(ctx context.Context, reg *engine.Registry, c *control.Control, splits *model.SplitSet, key string) (map[string]float64, error) {
	sp, ok := splits.Get(key)
	if !ok {
		return nil, fmt.Errorf("execution produced a result for unknown split %q", key)
	}
	eval, err := reg.Evaluation(c.Eval.Engine)
	if err != nil {
		return nil, err
	}
	ec := c.Clone()
	ec.BindSplit(sp)
	ec.Eval.Params = control.Merge(ec.Eval.Params, reg.Defaults(c.Eval.Engine))
	out, err := eval(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("evaluation %q, split %q: %w", c.Eval.Engine, key, err)
	}
	return out.Metrics, nil
}

// dispatch runs the configured report engines, then the publish engines, in
// configuration order.
func dispatch(ctx context.Context, reg *engine.Registry, c *control.Control, summary *model.RunSummary) error {
	for _, ref := range c.Reports {
		report, err := reg.Report(ref.Engine)
		if err != nil {
			return err
		}
		rc := c.Clone()
		rc.Reports = []control.StageRef{{Engine: ref.Engine, Params: control.Merge(ref.Params, reg.Defaults(ref.Engine))}}
		if err := report(ctx, rc, summary); err != nil {
			return fmt.Errorf("report %q: %w", ref.Engine, err)
		}
	}
	for _, ref := range c.Publish {
		publish, err := reg.Publish(ref.Engine)
		if err != nil {
			return err
		}
		pc := c.Clone()
		pc.Publish = []control.StageRef{{Engine: ref.Engine, Params: control.Merge(ref.Params, reg.Defaults(ref.Engine))}}
		if err := publish(ctx, pc, summary); err != nil {
			return fmt.Errorf("publish %q: %w", ref.Engine, err)
		}
	}
	return nil
}

// orderKeys sorts result keys into split-set insertion order; keys unknown to
// the split set (never produced by a well-behaved strategy) sort last in
// their original relative order.
func orderKeys(keys []string, splits *model.SplitSet) {
	rank := make(map[string]int, splits.Len())
	for i, k := range splits.Keys() {
		rank[k] = i
	}
	ordered := make([]string, 0, len(keys))
	var unknown []string
	for _, k := range splits.Keys() {
		for _, have := range keys {
			if have == k {
				ordered = append(ordered, k)
				break
			}
		}
	}
	for _, have := range keys {
		if _, ok := rank[have]; !ok {
			unknown = append(unknown, have)
		}
	}
	copy(keys, append(ordered, unknown...))
}
