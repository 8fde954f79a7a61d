// Package kfold provides the k-fold cross-validation split engine: the rows
// are shuffled once and dealt into k folds, and each fold in turn becomes the
// test set while the remaining folds form the training set.
package kfold

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
const Name = "kfold"

// Module registers the k-fold split engine.
type Module struct{}

// Register implements engine.Module.
func (m *Module) Register(r *engine.Registry) {
	r.Register(Name, &engine.Bundle{
		Role:    engine.RoleSplit,
		Wrapper: engine.SplitFunc(split),
		Core:    deal,
		Defaults: func() control.Params {
			return control.Params{"folds": cty.NumberIntVal(5)}
		},
	})
}

func split(ctx context.Context, c *control.Control) (*model.SplitOutput, error) {
	folds, ok := c.Split.Params.Int("folds")
	if !ok {
		folds = 5
	}
	// Smoke-test controls carry too few rows for a full default fold count.
	if c.Validation && folds > c.Data.Len() {
		folds = 2
	}
	if folds < 2 {
		return nil, fmt.Errorf("kfold: folds must be at least 2, got %d", folds)
	}
	if c.Data.Len() < folds {
		return nil, fmt.Errorf("kfold: %d folds need at least %d rows, got %d", folds, folds, c.Data.Len())
	}

	dealt := deal(c.Data.Len(), folds, c.SplitSeed)
	splits := model.NewSplitSet()
	for i, fold := range dealt {
		train := make([]int, 0, c.Data.Len()-len(fold))
		for j, other := range dealt {
			if j != i {
				train = append(train, other...)
			}
		}
		sort.Ints(train)
		sp := model.Split{Key: fmt.Sprintf("fold_%d", i+1), Train: train, Test: fold}
		if err := splits.Add(sp); err != nil {
			return nil, err
		}
	}
	return &model.SplitOutput{SplitType: Name, Splits: splits, Seed: c.SplitSeed}, nil
}

// deal shuffles the row indices with a seeded source and deals them into k
// folds of near-equal size, each sorted.
func deal(n, k int, seed int64) [][]int {
	idx := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	for i, row := range idx {
		folds[i%k] = append(folds[i%k], row)
	}
	for _, fold := range folds {
		sort.Ints(fold)
	}
	return folds
}
