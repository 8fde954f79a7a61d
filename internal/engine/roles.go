package engine

import (
	"context"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/model"
)

// Role identifies the pipeline stage an engine implements.
type Role string

// The fixed set of engine roles.
const (
	RoleSplit      Role = "split"
	RoleExecution  Role = "execution"
	RoleBody       Role = "body"
	RoleTransform  Role = "transform"
	RoleEvaluation Role = "evaluation"
	RoleReport     Role = "report"
	RolePublish    Role = "publish"
)

// SplitFunc partitions the workflow dataset into one or more train/test
// splits.
type SplitFunc func(ctx context.Context, c *control.Control) (*model.SplitOutput, error)

// ExecFunc runs the pipeline body over a split set under one execution
// strategy.
type ExecFunc func(ctx context.Context, c *control.Control, splits *model.SplitSet) (*model.ExecutionOutput, error)

// BodyFunc runs the full per-split pipeline; the control arrives with one
// split's train/test data bound in.
type BodyFunc func(ctx context.Context, c *control.Control) (model.BodyOutput, error)

// TransformFunc produces a transformed copy of the bound data.
type TransformFunc func(ctx context.Context, c *control.Control) (*model.TransformOutput, error)

// EvalFunc computes evaluation metrics for the bound split.
type EvalFunc func(ctx context.Context, c *control.Control) (*model.EvalOutput, error)

// ReportFunc renders a finished run summary.
type ReportFunc func(ctx context.Context, c *control.Control, summary *model.RunSummary) error

// PublishFunc exports a finished run summary to an external destination.
type PublishFunc func(ctx context.Context, c *control.Control, summary *model.RunSummary) error

// expectedSignature names the wrapper shape per role for error messages.
func expectedSignature(role Role) string {
	switch role {
	case RoleSplit:
		return "engine.SplitFunc: func(ctx, control) (*model.SplitOutput, error)"
	case RoleExecution:
		return "engine.ExecFunc: func(ctx, control, splits) (*model.ExecutionOutput, error)"
	case RoleBody:
		return "engine.BodyFunc: func(ctx, control) (model.BodyOutput, error)"
	case RoleTransform:
		return "engine.TransformFunc: func(ctx, control) (*model.TransformOutput, error)"
	case RoleEvaluation:
		return "engine.EvalFunc: func(ctx, control) (*model.EvalOutput, error)"
	case RoleReport:
		return "engine.ReportFunc: func(ctx, control, summary) error"
	case RolePublish:
		return "engine.PublishFunc: func(ctx, control, summary) error"
	default:
		return "unknown role"
	}
}
