package standardize_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/stability"
	"github.com/vk/foldrun/modules/standardize"
)

func newRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	reg := engine.New(logger)
	(&standardize.Module{}).Register(reg)
	return reg
}

func testControl() *control.Control {
	c := &control.Control{
		Name: "t",
		Data: &model.Frame{
			Columns: []string{"x", "y"},
			Rows:    [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}, {100, 50}},
		},
		Transform: control.StageRef{Engine: standardize.Name, Params: control.Params{"target": cty.StringVal("y")}},
	}
	c.BindSplit(model.Split{Key: "s_1", Train: []int{0, 1, 2, 3}, Test: []int{4}})
	return c
}

func TestStandardizePassesRegistration(t *testing.T) {
	require.True(t, newRegistry(t).Has(standardize.Name))
}

func TestStandardizeUsesTrainStatsOnly(t *testing.T) {
	reg := newRegistry(t)
	transform, err := reg.Transform(standardize.Name)
	require.NoError(t, err)

	c := testControl()
	out, err := transform(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, out.Frame)
	assert.Equal(t, standardize.Name, out.TransformType)

	// Training x values standardize to mean 0 with the train-set statistics;
	// the outlier in the test row does not influence them.
	xIdx := out.Frame.ColumnIndex("x")
	trainX := make([]float64, 0, 4)
	for _, i := range c.Train {
		trainX = append(trainX, out.Frame.Rows[i][xIdx])
	}
	assert.InDelta(t, 0, stability.Mean(trainX), 1e-12)

	// Test row: (100 - 2.5) / sd(train x).
	sd := stability.SD([]float64{1, 2, 3, 4})
	assert.InDelta(t, (100-2.5)/sd, out.Frame.Rows[4][xIdx], 1e-9)
}

func TestStandardizeLeavesTargetAndInput(t *testing.T) {
	reg := newRegistry(t)
	transform, err := reg.Transform(standardize.Name)
	require.NoError(t, err)

	c := testControl()
	out, err := transform(context.Background(), c)
	require.NoError(t, err)

	yIdx := out.Frame.ColumnIndex("y")
	for i, row := range c.Data.Rows {
		assert.Equal(t, row[yIdx], out.Frame.Rows[i][yIdx])
	}

	// The input frame itself is untouched.
	assert.Equal(t, 1.0, c.Data.Rows[0][c.Data.ColumnIndex("x")])
}

func TestStandardizeConstantColumn(t *testing.T) {
	reg := newRegistry(t)
	transform, err := reg.Transform(standardize.Name)
	require.NoError(t, err)

	c := &control.Control{
		Name: "t",
		Data: &model.Frame{
			Columns: []string{"x", "y"},
			Rows:    [][]float64{{7, 1}, {7, 2}, {7, 3}},
		},
		Transform: control.StageRef{Engine: standardize.Name, Params: control.Params{"target": cty.StringVal("y")}},
	}
	c.BindSplit(model.Split{Key: "s_1", Train: []int{0, 1}, Test: []int{2}})

	out, err := transform(context.Background(), c)
	require.NoError(t, err)
	xIdx := out.Frame.ColumnIndex("x")
	for _, row := range out.Frame.Rows {
		assert.Equal(t, 0.0, row[xIdx])
	}
}

func TestStandardizeRequiresBoundSplit(t *testing.T) {
	reg := newRegistry(t)
	transform, err := reg.Transform(standardize.Name)
	require.NoError(t, err)

	c := testControl()
	c.SplitKey = ""
	c.Train = nil
	_, err = transform(context.Background(), c)
	require.Error(t, err)
}
