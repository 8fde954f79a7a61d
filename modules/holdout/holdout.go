// Package holdout provides the holdout split engine: one random train/test
// partition of the workflow dataset at a configurable ratio.
package holdout

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
)

// Name is the registry key of this engine.
const Name = "holdout"

// Module registers the holdout split engine.
type Module struct{}

// Register implements engine.Module.
func (m *Module) Register(r *engine.Registry) {
	r.Register(Name, &engine.Bundle{
		Role:    engine.RoleSplit,
		Wrapper: engine.SplitFunc(split),
		Core:    partition,
		Defaults: func() control.Params {
			return control.Params{"ratio": cty.NumberFloatVal(0.8)}
		},
	})
}

func split(ctx context.Context, c *control.Control) (*model.SplitOutput, error) {
	if c.Data.Len() < 2 {
		return nil, fmt.Errorf("holdout needs at least 2 rows, got %d", c.Data.Len())
	}
	ratio, ok := c.Split.Params.Float("ratio")
	if !ok {
		ratio = 0.8
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("holdout: ratio must be in (0, 1), got %g", ratio)
	}

	train, test := partition(c.Data.Len(), ratio, c.SplitSeed)
	splits := model.NewSplitSet()
	if err := splits.Add(model.Split{Key: Name + "_1", Train: train, Test: test}); err != nil {
		return nil, err
	}
	return &model.SplitOutput{SplitType: Name, Splits: splits, Seed: c.SplitSeed}, nil
}

// partition shuffles row indices with a seeded source and cuts them at the
// ratio boundary. Both sides are always non-empty.
func partition(n int, ratio float64, seed int64) (train, test []int) {
	idx := rand.New(rand.NewSource(seed)).Perm(n)

	cut := int(float64(n) * ratio)
	if cut < 1 {
		cut = 1
	}
	if cut > n-1 {
		cut = n - 1
	}
	return idx[:cut], idx[cut:]
}
