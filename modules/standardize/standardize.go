// Package standardize provides the z-score stage transform: every feature
// column is centered and scaled using statistics computed on the training
// rows only, so no test-set information leaks into the transformed data.
package standardize

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/stability"
)

// Name is the registry key of this engine.
const Name = "standardize"

// Module registers the z-score transform engine.
type Module struct{}

// Register implements engine.Module.
func (m *Module) Register(r *engine.Registry) {
	r.Register(Name, &engine.Bundle{
		Role:    engine.RoleTransform,
		Wrapper: engine.TransformFunc(transform),
		Core:    zscore,
		Defaults: func() control.Params {
			return control.Params{"target": cty.StringVal("y")}
		},
	})
}

// transform standardizes every column except the target. The target column,
// named by the "target" parameter, passes through unchanged.
func transform(ctx context.Context, c *control.Control) (*model.TransformOutput, error) {
	if !c.Bound() {
		return nil, fmt.Errorf("standardize requires a bound split")
	}
	target, _ := c.Transform.Params.String("target")

	out := &model.Frame{
		Columns: append([]string(nil), c.Data.Columns...),
		Rows:    make([][]float64, c.Data.Len()),
	}
	for i, row := range c.Data.Rows {
		out.Rows[i] = append([]float64(nil), row...)
	}

	for j, name := range c.Data.Columns {
		if name == target {
			continue
		}
		trainVals, err := c.Data.Column(name, c.Train)
		if err != nil {
			return nil, err
		}
		mean, sd := zscore(trainVals)
		for i := range out.Rows {
			out.Rows[i][j] = (out.Rows[i][j] - mean) / sd
		}
	}
	return &model.TransformOutput{TransformType: Name, Frame: out}, nil
}

// zscore returns the training mean and a scale that is never zero, so
// constant columns standardize to zero instead of dividing by zero.
func zscore(values []float64) (mean, sd float64) {
	mean = stability.Mean(values)
	sd = stability.SD(values)
	if sd == 0 {
		sd = 1
	}
	return mean, sd
}
