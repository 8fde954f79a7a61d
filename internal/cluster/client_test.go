package cluster_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/foldrun/internal/cluster"
	"github.com/vk/foldrun/internal/control"
)

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	jobs := []cluster.Job{{Key: "split_001", Control: &control.Control{Name: "t"}}}

	t.Run("missing queue url", func(t *testing.T) {
		_, err := cluster.Submit(ctx, nil, nil, "run", jobs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduler url")

		_, err = cluster.Submit(ctx, &control.QueueSpec{}, nil, "run", jobs)
		require.Error(t, err)
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := cluster.Submit(ctx, &control.QueueSpec{URL: "http://scheduler:9000"}, nil, "run", nil)
		require.Error(t, err)
	})

	t.Run("duplicate job keys", func(t *testing.T) {
		dup := []cluster.Job{
			{Key: "split_001", Control: &control.Control{Name: "t"}},
			{Key: "split_001", Control: &control.Control{Name: "t"}},
		}
		_, err := cluster.Submit(ctx, &control.QueueSpec{URL: "http://scheduler:9000"}, nil, "run", dup)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate job key")
	})

	t.Run("invalid walltime", func(t *testing.T) {
		res := &control.ResourceSpec{Walltime: "not-a-duration"}
		_, err := cluster.Submit(ctx, &control.QueueSpec{URL: "http://scheduler:9000"}, res, "run", jobs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "walltime")
	})
}
