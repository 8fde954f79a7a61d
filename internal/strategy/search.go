package strategy

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/stability"
)

// SearchTrace is the strategy-specific output of the scalar parameter walk.
type SearchTrace struct {
	Param      string    `json:"param"`
	Direction  string    `json:"direction"`
	Values     []float64 `json:"values"`
	Metrics    []float64 `json:"metrics"`
	Best       float64   `json:"best_value"`
	BestMetric float64   `json:"best_metric"`
	Iterations int       `json:"iterations"`
}

// AdaptiveParam walks a single scalar pipeline-body parameter from start by
// step while the configured metric keeps improving by more than
// min_improvement in the configured direction. It stops on the first
// non-improving step or at max_iterations, and reports the best parameter
// value together with its full pipeline result.
func (s *Runner) AdaptiveParam(ctx context.Context, c *control.Control, splits *model.SplitSet) (*model.ExecutionOutput, error) {
	logger := ctxlog.FromContext(ctx).With("strategy", TypeAdaptiveParam)

	if c.Execution.Search == nil {
		return nil, fmt.Errorf("parameter-search execution requires a search block")
	}
	spec := *c.Execution.Search
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if splits == nil || splits.Len() == 0 {
		return nil, fmt.Errorf("parameter-search execution requires a non-empty split set")
	}

	direction := spec.Direction
	if direction == "" {
		direction = c.Direction
	}

	trace := &SearchTrace{Param: spec.Param, Direction: direction}
	var bestResults map[string]model.BodyOutput
	value := spec.Start

	for iter := 0; iter < spec.MaxIterations; iter++ {
		pc := c.Clone()
		pc.Body.Params = pc.Body.Params.Set(spec.Param, cty.NumberFloatVal(value))

		results := make(map[string]model.BodyOutput, splits.Len())
		perSplit := make([]float64, 0, splits.Len())
		for _, j := range prepareJobs(pc, splits) {
			out, err := s.runJob(ctx, j.Control)
			if err != nil {
				return nil, fmt.Errorf("%s=%g, split %q: %w", spec.Param, value, j.Key, err)
			}
			results[j.Key] = out
			m, err := out.Metric(c.Metric)
			if err != nil {
				return nil, fmt.Errorf("%s=%g, split %q: %w", spec.Param, value, j.Key, err)
			}
			perSplit = append(perSplit, m)
		}
		metric := stability.Mean(perSplit)

		logger.Debug("Search step evaluated.", "param", spec.Param, "value", value, "metric", metric)

		if len(trace.Values) > 0 && improvement(trace.BestMetric, metric, direction) <= spec.MinImprovement {
			logger.Info("Search stopped: metric no longer improving.",
				"param", spec.Param, "lastValue", value, "bestValue", trace.Best, "bestMetric", trace.BestMetric)
			trace.Values = append(trace.Values, value)
			trace.Metrics = append(trace.Metrics, metric)
			break
		}

		trace.Values = append(trace.Values, value)
		trace.Metrics = append(trace.Metrics, metric)
		trace.Best = value
		trace.BestMetric = metric
		bestResults = results
		value += spec.Step
	}
	trace.Iterations = len(trace.Values)

	if trace.Iterations == spec.MaxIterations && !stoppedEarly(trace) {
		logger.Info("Search stopped at the iteration ceiling.", "maxIterations", spec.MaxIterations)
	}

	return &model.ExecutionOutput{
		ExecutionType:    TypeAdaptiveParam,
		WorkflowResults:  bestResults,
		ContinueWorkflow: true,
		Specific:         trace,
	}, nil
}

// improvement measures how much cur improves on best in the given
// direction; positive means better.
func improvement(best, cur float64, direction string) float64 {
	if direction == control.DirectionMaximize {
		return cur - best
	}
	return best - cur
}

// stoppedEarly reports whether the walk ended on a non-improving step
// rather than the iteration ceiling.
func stoppedEarly(trace *SearchTrace) bool {
	return len(trace.Values) > 0 && trace.Values[len(trace.Values)-1] != trace.Best
}
