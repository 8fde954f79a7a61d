package strategy_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/foldrun/internal/checkpoint"
	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/internal/strategy"
	"github.com/vk/foldrun/internal/testutil"
)

// scriptedBody returns the scripted metric values in call order, repeating
// the last one once the script runs out. Safe for concurrent jobs.
type scriptedBody struct {
	mu     sync.Mutex
	script []float64
	calls  int
	failOn string // split key that errors, when set
	delay  time.Duration
}

func (b *scriptedBody) run(ctx context.Context, c *control.Control) (model.BodyOutput, error) {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.failOn != "" && c.SplitKey == b.failOn {
		return nil, fmt.Errorf("scripted failure")
	}
	b.mu.Lock()
	i := b.calls
	b.calls++
	b.mu.Unlock()
	if i >= len(b.script) {
		i = len(b.script) - 1
	}
	return model.BodyOutput{"metrics": map[string]float64{"score": b.script[i]}}, nil
}

// paramBody computes score = (alpha - 3)^2 from its own parameter block.
func paramBody(ctx context.Context, c *control.Control) (model.BodyOutput, error) {
	alpha, ok := c.Body.Params.Float("alpha")
	if !ok {
		return nil, fmt.Errorf("alpha parameter missing")
	}
	d := alpha - 3
	return model.BodyOutput{"metrics": map[string]float64{"score": d * d}}, nil
}

// singleSplit yields one fresh split per invocation, its train set varying
// with the split seed.
func singleSplit(ctx context.Context, c *control.Control) (*model.SplitOutput, error) {
	splits := model.NewSplitSet()
	offset := int(c.SplitSeed % 4)
	if err := splits.Add(model.Split{Key: "stub_1", Train: []int{offset, offset + 1}, Test: []int{offset + 2}}); err != nil {
		return nil, err
	}
	return &model.SplitOutput{SplitType: "stub", Splits: splits, Seed: c.SplitSeed}, nil
}

// doubleSplit yields two splits per invocation, which the adaptive loop must
// reject.
func doubleSplit(ctx context.Context, c *control.Control) (*model.SplitOutput, error) {
	splits := model.NewSplitSet()
	for i := 1; i <= 2; i++ {
		if err := splits.Add(model.Split{Key: fmt.Sprintf("fold_%d", i), Train: []int{0, 1}, Test: []int{2}}); err != nil {
			return nil, err
		}
	}
	return &model.SplitOutput{SplitType: "stub_multi", Splits: splits, Seed: c.SplitSeed}, nil
}

func emptyDefaults() control.Params { return control.Params{} }

func newRegistry(t *testing.T, body engine.BodyFunc) *engine.Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	reg := engine.New(logger)
	(&strategy.Module{}).Register(reg)
	(&testutil.SimpleModule{Bundles: map[string]*engine.Bundle{
		"stub_split": {Role: engine.RoleSplit, Wrapper: engine.SplitFunc(singleSplit), Core: singleSplit, Defaults: emptyDefaults},
		"stub_multi": {Role: engine.RoleSplit, Wrapper: engine.SplitFunc(doubleSplit), Core: doubleSplit, Defaults: emptyDefaults},
		"stub_body":  {Role: engine.RoleBody, Wrapper: body, Core: body, Defaults: emptyDefaults},
	}}).Register(reg)
	return reg
}

func baseControl(strategyName string) *control.Control {
	return &control.Control{
		Name:      "test",
		Seed:      1,
		SplitSeed: 1,
		Metric:    "score",
		Direction: control.DirectionMinimize,
		Split:     control.StageRef{Engine: "stub_split"},
		Body:      control.StageRef{Engine: "stub_body"},
		Execution: control.ExecutionSpec{Strategy: strategyName, Backend: control.BackendLocal, Workers: 1},
	}
}

func splitSet(t *testing.T, n int) *model.SplitSet {
	t.Helper()
	s := model.NewSplitSet()
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Add(model.Split{
			Key:   fmt.Sprintf("split_%03d", i),
			Train: []int{0, 1, 2},
			Test:  []int{3},
		}))
	}
	return s
}

func TestAllStrategiesRegistered(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	for _, key := range []string{
		strategy.TypeSequential,
		strategy.TypeParallel,
		strategy.TypeAdaptiveSplits,
		strategy.TypeAdaptiveParam,
		strategy.TypeHandoff,
	} {
		_, err := reg.Execution(key)
		require.NoError(t, err, key)
	}
}

func TestSequential(t *testing.T) {
	body := &scriptedBody{script: []float64{1, 2, 3}}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeSequential)
	require.NoError(t, err)

	splits := splitSet(t, 3)
	out, err := exec(context.Background(), baseControl(strategy.TypeSequential), splits)
	require.NoError(t, err)

	assert.Equal(t, strategy.TypeSequential, out.ExecutionType)
	assert.True(t, out.ContinueWorkflow)
	require.Len(t, out.WorkflowResults, 3)
	for _, key := range splits.Keys() {
		assert.Contains(t, out.WorkflowResults, key)
	}
}

func TestSequentialEmptySplitSet(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	exec, err := reg.Execution(strategy.TypeSequential)
	require.NoError(t, err)

	_, err = exec(context.Background(), baseControl(strategy.TypeSequential), model.NewSplitSet())
	require.Error(t, err)
}

func TestSequentialPropagatesJobError(t *testing.T) {
	body := &scriptedBody{script: []float64{1}, failOn: "split_002"}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeSequential)
	require.NoError(t, err)

	_, err = exec(context.Background(), baseControl(strategy.TypeSequential), splitSet(t, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split_002")
}

func TestParallelLocal(t *testing.T) {
	body := &scriptedBody{script: []float64{1, 2, 3, 4, 5, 6}, delay: 5 * time.Millisecond}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeParallel)
	require.NoError(t, err)

	base := t.TempDir()
	c := baseControl(strategy.TypeParallel)
	c.Execution.Workers = 4
	c.Execution.Resources = &control.ResourceSpec{RegistryDir: base}

	splits := splitSet(t, 6)
	out, err := exec(context.Background(), c, splits)
	require.NoError(t, err)

	require.Len(t, out.WorkflowResults, 6)
	for _, key := range splits.Keys() {
		assert.Contains(t, out.WorkflowResults, key)
	}

	// Every job result lands in the run workspace.
	info, ok := out.Specific.(*strategy.ParallelInfo)
	require.True(t, ok)
	assert.Equal(t, control.BackendLocal, info.Backend)
	for _, key := range splits.Keys() {
		_, err := os.Stat(filepath.Join(info.Workspace, "results", key+".json"))
		assert.NoError(t, err, key)
	}
}

func TestParallelFailsWholeBatch(t *testing.T) {
	body := &scriptedBody{script: []float64{1}, failOn: "split_003"}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeParallel)
	require.NoError(t, err)

	c := baseControl(strategy.TypeParallel)
	c.Execution.Workers = 2
	c.Execution.Resources = &control.ResourceSpec{RegistryDir: t.TempDir()}

	_, err = exec(context.Background(), c, splitSet(t, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split_003")
}

func TestParallelWorkspaceRecreated(t *testing.T) {
	body := &scriptedBody{script: []float64{1}}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeParallel)
	require.NoError(t, err)

	base := t.TempDir()
	c := baseControl(strategy.TypeParallel)
	c.Execution.Resources = &control.ResourceSpec{RegistryDir: base}

	// Plant a stale artifact where the workspace will be created.
	stale := filepath.Join(base, "registry-1", "results", "stale.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))

	_, err = exec(context.Background(), c, splitSet(t, 1))
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestAdaptiveSplitsStopsWhenStable(t *testing.T) {
	body := &scriptedBody{script: []float64{2, 2, 2, 2, 2}}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeAdaptiveSplits)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveSplits)
	c.Execution.Adaptive = &control.AdaptiveSpec{
		Rule:      "mean_relative",
		Threshold: 0.05,
		Window:    3,
		MinSplits: 4,
		MaxSplits: 10,
		BatchSize: 1,
	}

	out, err := exec(context.Background(), c, nil)
	require.NoError(t, err)

	trace, ok := out.Specific.(*strategy.AdaptiveTrace)
	require.True(t, ok)
	assert.True(t, trace.Stable)
	assert.False(t, trace.Forced)
	// A constant metric is stable at the first possible evaluation.
	assert.Len(t, trace.Observations, 4)
	assert.Equal(t, []string{"split_001", "split_002", "split_003", "split_004"}, trace.Splits.Keys())
	require.Len(t, out.WorkflowResults, 4)
	assert.Contains(t, out.WorkflowResults, "split_004")

	// Fresh splits come from consecutive seeds starting at the base seed.
	assert.Equal(t, []int64{1, 2, 3, 4}, trace.Seeds)
}

func TestAdaptiveSplitsForcedStop(t *testing.T) {
	body := &scriptedBody{script: []float64{1, 2, 3, 4, 5, 6, 7, 8}}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeAdaptiveSplits)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveSplits)
	c.Execution.Adaptive = &control.AdaptiveSpec{
		Rule:      "mean_relative",
		Threshold: 1e-9,
		Window:    3,
		MinSplits: 4,
		MaxSplits: 6,
		BatchSize: 1,
	}

	out, err := exec(context.Background(), c, nil)
	require.NoError(t, err)

	trace := out.Specific.(*strategy.AdaptiveTrace)
	assert.False(t, trace.Stable)
	assert.True(t, trace.Forced)
	assert.Equal(t, 6, trace.Splits.Len())
	assert.Len(t, out.WorkflowResults, 6)
}

func TestAdaptiveSplitsRejectsMultiSplitEngine(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	exec, err := reg.Execution(strategy.TypeAdaptiveSplits)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveSplits)
	c.Split.Engine = "stub_multi"
	c.Execution.Adaptive = &control.AdaptiveSpec{MaxSplits: 10}

	_, err = exec(context.Background(), c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one split")
}

func TestAdaptiveSplitsBatched(t *testing.T) {
	body := &scriptedBody{script: []float64{2, 2, 2, 2, 2, 2}}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeAdaptiveSplits)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveSplits)
	c.Execution.Resources = &control.ResourceSpec{RegistryDir: t.TempDir()}
	c.Execution.Adaptive = &control.AdaptiveSpec{
		Rule:      "mean_relative",
		Threshold: 0.05,
		Window:    3,
		MinSplits: 4,
		MaxSplits: 10,
		BatchSize: 2,
	}

	out, err := exec(context.Background(), c, nil)
	require.NoError(t, err)

	trace := out.Specific.(*strategy.AdaptiveTrace)
	assert.True(t, trace.Stable)
	// Whole batches only: 2 + 2 observations, evaluated after the second.
	assert.Len(t, trace.Observations, 4)
}

func TestAdaptiveSplitsBatchedHonorsQueueBackend(t *testing.T) {
	body := &scriptedBody{script: []float64{2, 2, 2, 2}}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeAdaptiveSplits)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveSplits)
	c.Execution.Backend = control.BackendQueue
	c.Execution.Resources = &control.ResourceSpec{RegistryDir: t.TempDir()}
	c.Execution.Adaptive = &control.AdaptiveSpec{
		Rule:      "mean_relative",
		Threshold: 0.05,
		Window:    3,
		MinSplits: 4,
		MaxSplits: 10,
		BatchSize: 2,
	}

	// No scheduler is configured, so the batch must be routed to the queue
	// backend and fail on the missing url rather than silently running on
	// the local pool.
	_, err = exec(context.Background(), c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler url")
}

func TestAdaptiveSplitsBatchedRejectsUnknownBackend(t *testing.T) {
	body := &scriptedBody{script: []float64{2, 2, 2, 2}}
	reg := newRegistry(t, engine.BodyFunc(body.run))
	exec, err := reg.Execution(strategy.TypeAdaptiveSplits)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveSplits)
	c.Execution.Backend = "fork"
	c.Execution.Adaptive = &control.AdaptiveSpec{MaxSplits: 10, BatchSize: 2}

	_, err = exec(context.Background(), c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fork")
}

func TestAdaptiveParamStopsOnNoImprovement(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	exec, err := reg.Execution(strategy.TypeAdaptiveParam)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveParam)
	c.Execution.Search = &control.SearchSpec{
		Param:         "alpha",
		Start:         0,
		Step:          1,
		MaxIterations: 10,
	}

	out, err := exec(context.Background(), c, splitSet(t, 2))
	require.NoError(t, err)

	trace, ok := out.Specific.(*strategy.SearchTrace)
	require.True(t, ok)
	// score(alpha) = (alpha-3)^2: 9, 4, 1, 0, then 1 stops the walk.
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, trace.Values)
	assert.Equal(t, 3.0, trace.Best)
	assert.Equal(t, 0.0, trace.BestMetric)
	assert.Equal(t, 5, trace.Iterations)
	assert.True(t, out.ContinueWorkflow)
	require.Len(t, out.WorkflowResults, 2)
}

func TestAdaptiveParamHitsIterationCeiling(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	exec, err := reg.Execution(strategy.TypeAdaptiveParam)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveParam)
	c.Execution.Search = &control.SearchSpec{
		Param:         "alpha",
		Start:         0,
		Step:          1,
		MaxIterations: 3,
	}

	out, err := exec(context.Background(), c, splitSet(t, 1))
	require.NoError(t, err)

	trace := out.Specific.(*strategy.SearchTrace)
	assert.Equal(t, 3, trace.Iterations)
	assert.Equal(t, 2.0, trace.Best)
}

func TestAdaptiveParamDoesNotMutateControl(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	exec, err := reg.Execution(strategy.TypeAdaptiveParam)
	require.NoError(t, err)

	c := baseControl(strategy.TypeAdaptiveParam)
	c.Execution.Search = &control.SearchSpec{Param: "alpha", Start: 0, Step: 1, MaxIterations: 4}

	_, err = exec(context.Background(), c, splitSet(t, 1))
	require.NoError(t, err)
	_, ok := c.Body.Params["alpha"]
	assert.False(t, ok)
}

func TestHandoff(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	exec, err := reg.Execution(strategy.TypeHandoff)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "checkpoint")
	c := baseControl(strategy.TypeHandoff)
	c.Execution.HandoffDir = dir

	out, err := exec(context.Background(), c, splitSet(t, 3))
	require.NoError(t, err)

	assert.False(t, out.ContinueWorkflow)
	assert.Equal(t, checkpoint.ExecutionType, out.ExecutionType)
	assert.Empty(t, out.WorkflowResults)

	for _, name := range []string{checkpoint.ControlFile, checkpoint.SplitsFile, checkpoint.PendingFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestHandoffRequiresDir(t *testing.T) {
	reg := newRegistry(t, engine.BodyFunc(paramBody))
	exec, err := reg.Execution(strategy.TypeHandoff)
	require.NoError(t, err)

	_, err = exec(context.Background(), baseControl(strategy.TypeHandoff), splitSet(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handoff_dir")
}
