// Package control defines the typed workflow configuration threaded through
// every engine call. A Control is immutable by convention: engines receive a
// clone and return changes instead of applying them in place; only an
// execution strategy mutates its own per-iteration clones.
package control

import (
	"fmt"

	"github.com/vk/foldrun/internal/model"
)

// StageRef names the engine bound to one pipeline stage, plus the user's
// parameter block for it.
type StageRef struct {
	Engine string
	Params Params
}

// Clone returns an independent copy of the stage reference.
func (s StageRef) Clone() StageRef {
	return StageRef{Engine: s.Engine, Params: s.Params.Clone()}
}

// Control is the per-run configuration contract. Strategies create
// per-iteration copies with split data bound in, but never retroactively
// alter ancestor state.
type Control struct {
	Name       string
	Seed       int64
	SplitSeed  int64 // seed for the current split-engine invocation
	Metric     string
	Direction  string
	DataPath   string
	Data       *model.Frame
	Validation bool // true only on synthetic smoke-test controls

	Split     StageRef
	Transform StageRef
	Body      StageRef
	Eval      StageRef
	Reports   []StageRef
	Publish   []StageRef

	Execution ExecutionSpec

	// Split binding, populated per job by execution strategies.
	SplitKey string
	Train    []int
	Test     []int
}

// Clone deep-copies the control. The data frame is shared: it is read-only
// by contract, and per-job isolation applies to configuration state, not to
// the immutable input dataset.
func (c *Control) Clone() *Control {
	out := *c
	out.Split = c.Split.Clone()
	out.Transform = c.Transform.Clone()
	out.Body = c.Body.Clone()
	out.Eval = c.Eval.Clone()
	out.Reports = cloneStages(c.Reports)
	out.Publish = cloneStages(c.Publish)
	out.Train = append([]int(nil), c.Train...)
	out.Test = append([]int(nil), c.Test...)
	if c.Execution.Resources != nil {
		r := *c.Execution.Resources
		r.Modules = append([]string(nil), c.Execution.Resources.Modules...)
		out.Execution.Resources = &r
	}
	if c.Execution.Queue != nil {
		q := *c.Execution.Queue
		out.Execution.Queue = &q
	}
	if c.Execution.Adaptive != nil {
		a := *c.Execution.Adaptive
		out.Execution.Adaptive = &a
	}
	if c.Execution.Search != nil {
		s := *c.Execution.Search
		out.Execution.Search = &s
	}
	return &out
}

func cloneStages(stages []StageRef) []StageRef {
	if stages == nil {
		return nil
	}
	out := make([]StageRef, len(stages))
	for i, s := range stages {
		out[i] = s.Clone()
	}
	return out
}

// BindSplit attaches one split's train/test row indices to the control.
// Callers bind on their own clone only.
func (c *Control) BindSplit(sp model.Split) {
	c.SplitKey = sp.Key
	c.Train = append([]int(nil), sp.Train...)
	c.Test = append([]int(nil), sp.Test...)
}

// Bound reports whether a split is currently attached.
func (c *Control) Bound() bool {
	return c.SplitKey != "" && len(c.Train) > 0
}

// LoadData reads the workflow data frame from DataPath if it has not been
// loaded yet.
func (c *Control) LoadData() error {
	if c.Data != nil || c.DataPath == "" {
		return nil
	}
	frame, err := model.LoadFrame(c.DataPath)
	if err != nil {
		return fmt.Errorf("workflow %q: %w", c.Name, err)
	}
	c.Data = frame
	return nil
}

// Validate checks the parts of the control every run needs.
func (c *Control) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("workflow: name is required")
	}
	if c.Metric == "" {
		return fmt.Errorf("workflow: metric is required")
	}
	switch c.Direction {
	case DirectionMinimize, DirectionMaximize:
	default:
		return fmt.Errorf("workflow: direction must be %q or %q, got %q", DirectionMinimize, DirectionMaximize, c.Direction)
	}
	if c.Split.Engine == "" {
		return fmt.Errorf("workflow: a split block is required")
	}
	if c.Body.Engine == "" {
		return fmt.Errorf("workflow: a body block is required")
	}
	return c.Execution.Validate()
}

// Synthetic builds the tiny deterministic control used for registration
// smoke tests. Engines can recognize it by Validation being true.
func Synthetic(params Params) *Control {
	frame := &model.Frame{
		Columns: []string{"x", "y"},
		Rows: [][]float64{
			{0.0, 1.0}, {1.0, 1.5}, {2.0, 2.2}, {3.0, 2.9},
			{4.0, 4.1}, {5.0, 4.8}, {6.0, 6.2}, {7.0, 6.9},
		},
	}
	c := &Control{
		Name:       "synthetic-validation",
		Seed:       1,
		SplitSeed:  1,
		Metric:     "rmse",
		Direction:  DirectionMinimize,
		Data:       frame,
		Validation: true,
		Split:      StageRef{Params: params.Clone()},
		Body:       StageRef{Params: params.Clone()},
		Eval:       StageRef{Params: params.Clone()},
	}
	c.BindSplit(model.Split{Key: "synthetic_1", Train: []int{0, 1, 2, 3, 4, 5}, Test: []int{6, 7}})
	return c
}
