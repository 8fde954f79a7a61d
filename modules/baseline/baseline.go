// Package baseline provides the mean-predictor pipeline body and the matching
// regression evaluation engine. The body fits the training-set mean of the
// target column and scores it on the test rows; it is the reference point
// every real model has to beat, and doubles as the default body for workflow
// wiring tests.
package baseline

import (
	"context"
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/stability"
)

// Registry keys of the engines in this package.
const (
	Name     = "baseline"
	EvalName = "regression"
)

// Module registers the mean-predictor body and the regression evaluation
// engine.
type Module struct{}

// Register implements engine.Module.
func (m *Module) Register(r *engine.Registry) {
	defaults := func() control.Params {
		return control.Params{"target": cty.StringVal("y")}
	}
	r.Register(Name, &engine.Bundle{
		Role:     engine.RoleBody,
		Wrapper:  engine.BodyFunc(run),
		Core:     score,
		Defaults: defaults,
	})
	r.Register(EvalName, &engine.Bundle{
		Role:     engine.RoleEvaluation,
		Wrapper:  engine.EvalFunc(evaluate),
		Core:     score,
		Defaults: defaults,
	})
}

func run(ctx context.Context, c *control.Control) (model.BodyOutput, error) {
	target, train, test, err := targetColumns(c, c.Body.Params)
	if err != nil {
		return nil, err
	}

	prediction := stability.Mean(train)
	metrics := score(prediction, test)

	return model.BodyOutput{
		"model":   map[string]any{"type": Name, "target": target, "prediction": prediction},
		"metrics": metrics,
		"n_train": len(train),
		"n_test":  len(test),
	}, nil
}

// evaluate recomputes the regression metrics for the bound split without
// going through a body run; the post-execution phase uses it when execution
// results carry no metrics of their own.
func evaluate(ctx context.Context, c *control.Control) (*model.EvalOutput, error) {
	_, train, test, err := targetColumns(c, c.Eval.Params)
	if err != nil {
		return nil, err
	}
	return &model.EvalOutput{
		Metrics:   score(stability.Mean(train), test),
		EvalType:  EvalName,
		InputData: c.SplitKey,
	}, nil
}

func targetColumns(c *control.Control, params control.Params) (string, []float64, []float64, error) {
	if !c.Bound() {
		return "", nil, nil, fmt.Errorf("baseline requires a bound split")
	}
	target, ok := params.String("target")
	if !ok {
		target = "y"
	}
	train, err := c.Data.Column(target, c.Train)
	if err != nil {
		return "", nil, nil, err
	}
	test, err := c.Data.Column(target, c.Test)
	if err != nil {
		return "", nil, nil, err
	}
	if len(test) == 0 {
		return "", nil, nil, fmt.Errorf("baseline: test set is empty")
	}
	return target, train, test, nil
}

// score computes rmse and mae of a constant prediction against the observed
// test values.
func score(prediction float64, observed []float64) map[string]float64 {
	var sq, abs float64
	for _, y := range observed {
		d := y - prediction
		sq += d * d
		abs += math.Abs(d)
	}
	n := float64(len(observed))
	return map[string]float64{
		"rmse": math.Sqrt(sq / n),
		"mae":  abs / n,
	}
}
