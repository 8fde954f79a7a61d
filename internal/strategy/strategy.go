// Package strategy implements the family of execution strategies that decide
// how many times, and with what parallelism, the pipeline body runs over a
// split set: sequential, batch-parallel (local worker pool or external job
// queue), the convergence-driven adaptive loop, the scalar parameter search,
// and the checkpoint handoff.
//
// Every strategy is registered as an execution-role engine, so callers select
// one by name through the engine registry like any other engine.
package strategy

import (
	"context"
	"fmt"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/stability"
)

// Strategy identifiers, used as registry keys and as the execution_type of
// the results they produce.
const (
	TypeSequential     = "sequential"
	TypeParallel       = "parallel"
	TypeAdaptiveSplits = "adaptive_splits"
	TypeAdaptiveParam  = "adaptive_param"
	TypeHandoff        = "handoff"
)

// Runner holds the registry reference the strategies dispatch through.
// Custom, when set, backs the custom_relative/custom_absolute stability
// rules for the adaptive loop.
type Runner struct {
	reg    *engine.Registry
	Custom stability.AggFunc
}

// NewRunner creates a strategy runner bound to a registry.
func NewRunner(reg *engine.Registry) *Runner {
	return &Runner{reg: reg}
}

// Module registers all built-in execution strategies with a registry.
// Custom, when set, is handed to the runner for the custom_* stability
// rules.
type Module struct {
	Custom stability.AggFunc
}

// Register implements engine.Module.
func (m *Module) Register(r *engine.Registry) {
	s := NewRunner(r)
	s.Custom = m.Custom
	register := func(key string, wrapper engine.ExecFunc, core any) {
		r.Register(key, &engine.Bundle{
			Role:     engine.RoleExecution,
			Wrapper:  wrapper,
			Core:     core,
			Defaults: func() control.Params { return control.Params{} },
		})
	}
	register(TypeSequential, engine.ExecFunc(s.Sequential), s.runJob)
	register(TypeParallel, engine.ExecFunc(s.Parallel), s.runLocalBatch)
	register(TypeAdaptiveSplits, engine.ExecFunc(s.AdaptiveSplits), s.runJob)
	register(TypeAdaptiveParam, engine.ExecFunc(s.AdaptiveParam), s.runJob)
	register(TypeHandoff, engine.ExecFunc(s.Handoff), s.runJob)
}

// job is one unit of work: a split key plus a control clone with that
// split's data bound in. Jobs are fully independent; no job observes
// another's state.
type job struct {
	Key     string
	Control *control.Control
}

// prepareJobs builds one isolated job per split, keyed identically to the
// split set.
func prepareJobs(c *control.Control, splits *model.SplitSet) []job {
	jobs := make([]job, 0, splits.Len())
	for _, sp := range splits.All() {
		jc := c.Clone()
		jc.BindSplit(sp)
		jobs = append(jobs, job{Key: sp.Key, Control: jc})
	}
	return jobs
}

// runJob executes the per-split pipeline body for one job: the optional
// stage transform first, then the body engine, each with its parameters
// auto-filled from the engine defaults. jc is owned by the job, so merging
// parameters in place is this strategy's own loop state, not a caller
// mutation.
func (s *Runner) runJob(ctx context.Context, jc *control.Control) (model.BodyOutput, error) {
	if jc.Transform.Engine != "" {
		transform, err := s.reg.Transform(jc.Transform.Engine)
		if err != nil {
			return nil, err
		}
		jc.Transform.Params = control.Merge(jc.Transform.Params, s.reg.Defaults(jc.Transform.Engine))
		tout, err := transform(ctx, jc)
		if err != nil {
			return nil, fmt.Errorf("transform %q: %w", jc.Transform.Engine, err)
		}
		jc.Data = tout.Frame
	}

	body, err := s.reg.Body(jc.Body.Engine)
	if err != nil {
		return nil, err
	}
	jc.Body.Params = control.Merge(jc.Body.Params, s.reg.Defaults(jc.Body.Engine))
	return body(ctx, jc)
}
