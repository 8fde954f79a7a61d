// Package subsample provides the subsampling split engine: one split whose
// training set is a random fraction of the rows and whose test set is the
// remainder. Because every invocation yields exactly one split, it is a
// natural fit for the adaptive split loop.
package subsample

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
)

// Name is the registry key of this engine.
const Name = "subsample"

// Module registers the subsampling split engine.
type Module struct{}

// Register implements engine.Module.
func (m *Module) Register(r *engine.Registry) {
	r.Register(Name, &engine.Bundle{
		Role:    engine.RoleSplit,
		Wrapper: engine.SplitFunc(split),
		Core:    draw,
		Defaults: func() control.Params {
			return control.Params{"fraction": cty.NumberFloatVal(0.632)}
		},
	})
}

func split(ctx context.Context, c *control.Control) (*model.SplitOutput, error) {
	if c.Data.Len() < 2 {
		return nil, fmt.Errorf("subsample needs at least 2 rows, got %d", c.Data.Len())
	}
	fraction, ok := c.Split.Params.Float("fraction")
	if !ok {
		fraction = 0.632
	}
	if fraction <= 0 || fraction >= 1 {
		return nil, fmt.Errorf("subsample: fraction must be in (0, 1), got %g", fraction)
	}

	train, test := draw(c.Data.Len(), fraction, c.SplitSeed)
	splits := model.NewSplitSet()
	if err := splits.Add(model.Split{Key: Name + "_1", Train: train, Test: test}); err != nil {
		return nil, err
	}
	return &model.SplitOutput{SplitType: Name, Splits: splits, Seed: c.SplitSeed}, nil
}

// draw picks a seeded random fraction of the row indices as the training set
// and leaves the rest as the test set, each side sorted and non-empty.
func draw(n int, fraction float64, seed int64) (train, test []int) {
	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}
	if k > n-1 {
		k = n - 1
	}

	idx := rand.New(rand.NewSource(seed)).Perm(n)
	train = append([]int(nil), idx[:k]...)
	test = append([]int(nil), idx[k:]...)
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}
