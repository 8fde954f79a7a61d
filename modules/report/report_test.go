package report_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
	"github.com/vk/foldrun/modules/report"
)

func newRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	reg := engine.New(logger)
	(&report.Module{}).Register(reg)
	return reg
}

func sampleSummary() *model.RunSummary {
	return &model.RunSummary{
		Workflow:      "demo",
		ExecutionType: "sequential",
		SplitKeys:     []string{"split_001", "split_002"},
		Metrics: map[string]*model.MetricSummary{
			"rmse": {
				Mean:     2.0,
				SD:       1.0,
				PerSplit: map[string]float64{"split_001": 1.0, "split_002": 3.0},
			},
		},
	}
}

func TestReportPassesRegistration(t *testing.T) {
	reg := newRegistry(t)
	require.True(t, reg.Has(report.TextName))
	require.True(t, reg.Has(report.ArchiveName))
}

func TestTextReportToFile(t *testing.T) {
	reg := newRegistry(t)
	text, err := reg.Report(report.TextName)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.txt")
	c := &control.Control{
		Name:    "demo",
		Reports: []control.StageRef{{Engine: report.TextName, Params: control.Params{"path": cty.StringVal(path)}}},
	}
	require.NoError(t, text(context.Background(), c, sampleSummary()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "workflow demo")
	assert.Contains(t, out, "rmse")
	assert.Contains(t, out, "split_002")
}

func TestArchivePublish(t *testing.T) {
	reg := newRegistry(t)
	archive, err := reg.Publish(report.ArchiveName)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "summary.yaml")
	c := &control.Control{
		Name:    "demo",
		Publish: []control.StageRef{{Engine: report.ArchiveName, Params: control.Params{"path": cty.StringVal(path)}}},
	}
	require.NoError(t, archive(context.Background(), c, sampleSummary()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got model.RunSummary
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, "demo", got.Workflow)
	require.Contains(t, got.Metrics, "rmse")
	assert.Equal(t, 2.0, got.Metrics["rmse"].Mean)
}
