package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/model"
)

// ErrSkipSmokeTest is the opt-out sentinel for the registration smoke test.
// An engine whose wrapper cannot run meaningfully on synthetic data returns
// it when the incoming control has Validation set; the registry counts the
// opt-out as a pass.
var ErrSkipSmokeTest = errors.New("engine opted out of the registration smoke test")

// validate checks a candidate bundle: all three members present, the wrapper
// carrying its role's exact signature, and — for roles where a synthetic
// invocation is safe — a functional smoke test on generated data.
func (r *Registry) validate(key string, b *Bundle) error {
	if b == nil {
		return fmt.Errorf("bundle is nil")
	}

	var missing []string
	if b.Wrapper == nil {
		missing = append(missing, "wrapper")
	}
	if b.Core == nil {
		missing = append(missing, "core")
	}
	if b.Defaults == nil {
		missing = append(missing, "defaults")
	}
	if len(missing) > 0 {
		return fmt.Errorf("bundle is incomplete: missing %v", missing)
	}

	if !wrapperMatchesRole(b) {
		return fmt.Errorf("wrapper has the wrong signature for role %q: want %s, got %T",
			b.Role, expectedSignature(b.Role), b.Wrapper)
	}

	switch b.Role {
	case RoleSplit, RoleTransform, RoleEvaluation:
		if err := r.smokeTest(key, b); err != nil {
			return fmt.Errorf("smoke test failed: %w", err)
		}
	}
	return nil
}

// wrapperMatchesRole asserts the wrapper's role-typed signature. The typed
// function kinds make this a plain type assertion; anything else the
// original system learned by introspecting wrapper source (argument names,
// output-constructor references) is enforced here by the type system.
func wrapperMatchesRole(b *Bundle) bool {
	switch b.Role {
	case RoleSplit:
		_, ok := b.Wrapper.(SplitFunc)
		return ok
	case RoleExecution:
		_, ok := b.Wrapper.(ExecFunc)
		return ok
	case RoleBody:
		_, ok := b.Wrapper.(BodyFunc)
		return ok
	case RoleTransform:
		_, ok := b.Wrapper.(TransformFunc)
		return ok
	case RoleEvaluation:
		_, ok := b.Wrapper.(EvalFunc)
		return ok
	case RoleReport:
		_, ok := b.Wrapper.(ReportFunc)
		return ok
	case RolePublish:
		_, ok := b.Wrapper.(PublishFunc)
		return ok
	default:
		return false
	}
}

// smokeTest invokes the wrapper against a synthetic control and asserts the
// standardized output fields are present and correctly shaped.
func (r *Registry) smokeTest(key string, b *Bundle) error {
	ctx := ctxlog.WithLogger(context.Background(), r.logger)
	synthetic := control.Synthetic(b.Defaults())

	switch b.Role {
	case RoleSplit:
		out, err := b.Wrapper.(SplitFunc)(ctx, synthetic)
		if errors.Is(err, ErrSkipSmokeTest) {
			return nil
		}
		if err != nil {
			return err
		}
		return checkSplitOutput(key, out)

	case RoleTransform:
		out, err := b.Wrapper.(TransformFunc)(ctx, synthetic)
		if errors.Is(err, ErrSkipSmokeTest) {
			return nil
		}
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("engine %q returned a nil transform output", key)
		}
		if out.TransformType == "" {
			return fmt.Errorf("engine %q returned an empty transform_type", key)
		}
		if out.Frame == nil || out.Frame.Len() == 0 {
			return fmt.Errorf("engine %q returned an empty frame", key)
		}
		return nil

	case RoleEvaluation:
		out, err := b.Wrapper.(EvalFunc)(ctx, synthetic)
		if errors.Is(err, ErrSkipSmokeTest) {
			return nil
		}
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("engine %q returned a nil evaluation output", key)
		}
		if out.EvalType == "" {
			return fmt.Errorf("engine %q returned an empty eval_type", key)
		}
		if len(out.Metrics) == 0 {
			return fmt.Errorf("engine %q returned no metrics", key)
		}
		return nil
	}
	return nil
}

func checkSplitOutput(key string, out *model.SplitOutput) error {
	if out == nil {
		return fmt.Errorf("engine %q returned a nil split output", key)
	}
	if out.SplitType == "" {
		return fmt.Errorf("engine %q returned an empty split_type", key)
	}
	if out.Splits == nil || out.Splits.Len() == 0 {
		return fmt.Errorf("engine %q returned an empty split set", key)
	}
	for _, sp := range out.Splits.All() {
		if len(sp.Train) == 0 || len(sp.Test) == 0 {
			return fmt.Errorf("engine %q returned split %q with an empty train or test partition", key, sp.Key)
		}
	}
	return nil
}
