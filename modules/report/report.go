// Package report provides the built-in run-summary sinks: a plain-text
// report engine and a YAML archive publish engine.
//
// The post-execution phase hands each sink a control clone whose Reports or
// Publish list holds exactly the invoked stage with its parameters merged
// over the engine defaults.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/vk/foldrun/internal/control"
	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/model"
)

// Registry keys of the engines in this package.
const (
	TextName    = "text"
	ArchiveName = "archive"
)

// Module registers the text report and archive publish engines.
type Module struct{}

// Register implements engine.Module.
func (m *Module) Register(r *engine.Registry) {
	r.Register(TextName, &engine.Bundle{
		Role:    engine.RoleReport,
		Wrapper: engine.ReportFunc(text),
		Core:    render,
		Defaults: func() control.Params {
			return control.Params{"path": cty.StringVal("")}
		},
	})
	r.Register(ArchiveName, &engine.Bundle{
		Role:    engine.RolePublish,
		Wrapper: engine.PublishFunc(archive),
		Core:    render,
		Defaults: func() control.Params {
			return control.Params{"path": cty.StringVal("summary.yaml")}
		},
	})
}

// text renders the summary as plain text, to the file named by the "path"
// parameter or to stdout when the path is empty.
func text(ctx context.Context, c *control.Control, summary *model.RunSummary) error {
	path := ""
	if len(c.Reports) > 0 {
		path, _ = c.Reports[0].Params.String("path")
	}

	rendered := render(summary)
	if path == "" {
		_, err := fmt.Fprint(os.Stdout, rendered)
		return err
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Report written.", "path", path)
	return nil
}

// archive serializes the full summary as YAML to the "path" parameter.
func archive(ctx context.Context, c *control.Control, summary *model.RunSummary) error {
	path := "summary.yaml"
	if len(c.Publish) > 0 {
		if p, ok := c.Publish[0].Params.String("path"); ok && p != "" {
			path = p
		}
	}

	raw, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Summary archived.", "path", path)
	return nil
}

// render formats the summary as an aligned text block.
func render(summary *model.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s (%s, %d splits)\n", summary.Workflow, summary.ExecutionType, len(summary.SplitKeys))
	for _, name := range summary.MetricNames() {
		ms := summary.Metrics[name]
		fmt.Fprintf(&b, "  %-12s mean=%.6g sd=%.6g\n", name, ms.Mean, ms.SD)
		for _, key := range summary.SplitKeys {
			if v, ok := ms.PerSplit[key]; ok {
				fmt.Fprintf(&b, "    %-14s %.6g\n", key, v)
			}
		}
	}
	return b.String()
}
