package strategy

import (
	"context"
	"fmt"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/stability"
	"github.com/vk/foldrun/internal/workspace"
)

// AdaptiveTrace is the strategy-specific output of the output-stability
// loop: the full observation history, the seeds used, the reconstructed
// split set, and every stability evaluation — enough to audit or replay the
// stopping decision.
type AdaptiveTrace struct {
	Rule         string             `json:"rule"`
	Observations []float64          `json:"observations"`
	Seeds        []int64            `json:"seeds"`
	Splits       *model.SplitSet    `json:"splits"`
	Evaluations  []stability.Result `json:"evaluations"`
	Stable       bool               `json:"stable"`
	Forced       bool               `json:"forced_stop"`
}

// AdaptiveSplits runs the output-stability loop: it generates fresh splits
// with a deterministic seed sequence (base seed + counter), runs the
// pipeline body on each, appends the configured metric to the observation
// history, and evaluates the configured stability rule after each iteration
// once min_splits observations exist. The loop stops when the rule reports
// stability, or with a logged forced stop at max_splits.
//
// The incoming split set is ignored; this strategy owns split generation.
func (s *Runner) AdaptiveSplits(ctx context.Context, c *control.Control, _ *model.SplitSet) (*model.ExecutionOutput, error) {
	logger := ctxlog.FromContext(ctx).With("strategy", TypeAdaptiveSplits)

	if c.Execution.Adaptive == nil {
		return nil, fmt.Errorf("adaptive execution requires an adaptive block")
	}
	// Work on a normalized copy; the caller's configuration stays untouched.
	spec := *c.Execution.Adaptive
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	splitFn, err := s.reg.Split(c.Split.Engine)
	if err != nil {
		return nil, err
	}
	splitParams := control.Merge(c.Split.Params, s.reg.Defaults(c.Split.Engine))

	nextSeed := c.Seed
	generate := func() (model.Split, int64, error) {
		seed := nextSeed
		nextSeed++
		sc := c.Clone()
		sc.SplitSeed = seed
		sc.Split.Params = splitParams
		out, err := splitFn(ctx, sc)
		if err != nil {
			return model.Split{}, seed, fmt.Errorf("split engine %q (seed %d): %w", c.Split.Engine, seed, err)
		}
		if out == nil || out.Splits == nil || out.Splits.Len() != 1 {
			n := 0
			if out != nil && out.Splits != nil {
				n = out.Splits.Len()
			}
			return model.Split{}, seed, fmt.Errorf(
				"adaptive execution requires a split engine yielding exactly one split per invocation, but %q produced %d; use a single-split method such as holdout or subsampling",
				c.Split.Engine, n)
		}
		return out.Splits.All()[0], seed, nil
	}

	// Probe the splitter before the loop starts so multi-fold engines are
	// rejected up front, not mid-run. The probed split becomes iteration 1.
	probe, probeSeed, err := generate()
	if err != nil {
		return nil, err
	}
	type pendingSplit struct {
		split model.Split
		seed  int64
	}
	queue := []pendingSplit{{probe, probeSeed}}

	// The batch sub-form reuses the batch-parallel mechanism per iteration:
	// each batch is submitted to the configured backend (local pool or job
	// queue) and its results land in a job-registry workspace.
	exec := c.Execution
	exec.Normalize()
	var ws *workspace.Workspace
	if spec.BatchSize > 1 {
		switch exec.Backend {
		case control.BackendLocal, control.BackendQueue:
		default:
			return nil, fmt.Errorf("unknown execution backend %q", exec.Backend)
		}
		if err := exec.Resources.Validate(exec.Backend); err != nil {
			return nil, err
		}
		registryDir := ""
		if exec.Resources != nil {
			registryDir = exec.Resources.RegistryDir
		}
		if ws, err = workspace.Create(ctx, registryDir, c.Seed); err != nil {
			return nil, err
		}
	}

	trace := &AdaptiveTrace{Rule: spec.Rule, Splits: model.NewSplitSet()}
	results := make(map[string]model.BodyOutput)

	for {
		batch := spec.BatchSize
		if remaining := spec.MaxSplits - trace.Splits.Len(); batch > remaining {
			batch = remaining
		}

		jobs := make([]job, 0, batch)
		for len(jobs) < batch {
			var ps pendingSplit
			if len(queue) > 0 {
				ps, queue = queue[0], queue[1:]
			} else {
				if ps.split, ps.seed, err = generate(); err != nil {
					return nil, err
				}
			}
			ps.split.Key = fmt.Sprintf("split_%03d", trace.Splits.Len()+1)
			if err := trace.Splits.Add(ps.split); err != nil {
				return nil, err
			}
			trace.Seeds = append(trace.Seeds, ps.seed)

			jc := c.Clone()
			jc.SplitSeed = ps.seed
			jc.BindSplit(ps.split)
			jobs = append(jobs, job{Key: ps.split.Key, Control: jc})
		}

		var outs map[string]model.BodyOutput
		if ws != nil {
			switch exec.Backend {
			case control.BackendQueue:
				outs, err = s.runQueueBatch(ctx, ws, exec.Queue, exec.Resources, jobs)
			default:
				outs, err = s.runLocalBatch(ctx, ws, exec.Workers, jobs)
			}
			if err != nil {
				return nil, err
			}
		} else {
			outs = make(map[string]model.BodyOutput, len(jobs))
			for _, j := range jobs {
				out, err := s.runJob(ctx, j.Control)
				if err != nil {
					return nil, fmt.Errorf("split %q: %w", j.Key, err)
				}
				outs[j.Key] = out
			}
		}

		for _, j := range jobs {
			out := outs[j.Key]
			results[j.Key] = out
			metric, err := out.Metric(c.Metric)
			if err != nil {
				return nil, fmt.Errorf("split %q: %w", j.Key, err)
			}
			trace.Observations = append(trace.Observations, metric)
			logger.Debug("Observation collected.", "split", j.Key, "metric", c.Metric, "value", metric)
		}

		if len(trace.Observations) >= spec.MinSplits {
			res, err := stability.Evaluate(spec.Rule, trace.Observations, spec.Threshold, spec.Window, s.Custom)
			if err != nil {
				return nil, err
			}
			trace.Evaluations = append(trace.Evaluations, res)
			logger.Debug("Stability evaluated.", "rule", res.Rule, "value", res.Value, "threshold", res.Threshold, "stable", res.Stable)
			if res.Stable {
				trace.Stable = true
				logger.Info("Metric stability reached.", "observations", len(trace.Observations), "rule", spec.Rule)
				break
			}
		}

		if trace.Splits.Len() >= spec.MaxSplits {
			trace.Forced = true
			logger.Warn("Stability not reached; stopping at the split ceiling.",
				"maxSplits", spec.MaxSplits, "rule", spec.Rule)
			break
		}
	}

	return &model.ExecutionOutput{
		ExecutionType:    TypeAdaptiveSplits,
		WorkflowResults:  results,
		ContinueWorkflow: true,
		Specific:         trace,
	}, nil
}
