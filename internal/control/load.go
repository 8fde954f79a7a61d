package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/foldrun/internal/ctxlog"
	"github.com/vk/foldrun/internal/fsutil"
)

// workflowHCL mirrors the workflow block of a workflow file.
type workflowHCL struct {
	Name      string `hcl:"name"`
	Seed      int64  `hcl:"seed,optional"`
	Metric    string `hcl:"metric"`
	Direction string `hcl:"direction,optional"`
	Data      string `hcl:"data,optional"`
}

var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "workflow"},
		{Type: "execution"},
		{Type: "split", LabelNames: []string{"engine"}},
		{Type: "transform", LabelNames: []string{"engine"}},
		{Type: "body", LabelNames: []string{"engine"}},
		{Type: "evaluation", LabelNames: []string{"engine"}},
		{Type: "report", LabelNames: []string{"engine"}},
		{Type: "publish", LabelNames: []string{"engine"}},
	},
}

// LoadPath parses a workflow configuration from a single .hcl file or from
// every .hcl file under a directory (processed in path order, later blocks
// overriding earlier ones).
func LoadPath(ctx context.Context, path string) (*Control, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("workflow path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow directory %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no .hcl workflow files found in %s", path)
		}
		sort.Strings(files)
	}
	logger.Debug("Loading workflow configuration.", "files", files)

	parser := hclparse.NewParser()
	c := &Control{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse workflow file %s: %w", file, diags)
		}
		if err := decodeFile(c, hclFile.Body, filepath.Dir(file)); err != nil {
			return nil, fmt.Errorf("workflow file %s: %w", file, err)
		}
	}

	c.finalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Workflow configuration loaded.", "workflow", c.Name, "strategy", c.Execution.Strategy)
	return c, nil
}

func decodeFile(c *Control, body hcl.Body, baseDir string) error {
	content, diags := body.Content(fileSchema)
	if diags.HasErrors() {
		return fmt.Errorf("invalid workflow structure: %w", diags)
	}

	for _, block := range content.Blocks {
		switch block.Type {
		case "workflow":
			var wf workflowHCL
			if diags := gohcl.DecodeBody(block.Body, nil, &wf); diags.HasErrors() {
				return fmt.Errorf("invalid workflow block: %w", diags)
			}
			c.Name = wf.Name
			c.Seed = wf.Seed
			c.Metric = wf.Metric
			c.Direction = wf.Direction
			if wf.Data != "" {
				c.DataPath = wf.Data
				if !filepath.IsAbs(c.DataPath) {
					c.DataPath = filepath.Join(baseDir, c.DataPath)
				}
			}
		case "execution":
			var spec ExecutionSpec
			if diags := gohcl.DecodeBody(block.Body, nil, &spec); diags.HasErrors() {
				return fmt.Errorf("invalid execution block: %w", diags)
			}
			c.Execution = spec
		default:
			ref, err := decodeStage(block)
			if err != nil {
				return err
			}
			switch block.Type {
			case "split":
				c.Split = ref
			case "transform":
				c.Transform = ref
			case "body":
				c.Body = ref
			case "evaluation":
				c.Eval = ref
			case "report":
				c.Reports = append(c.Reports, ref)
			case "publish":
				c.Publish = append(c.Publish, ref)
			}
		}
	}
	return nil
}

// decodeStage turns a labeled stage block into a StageRef. Stage parameters
// are literal attributes; no expression evaluation context is provided.
func decodeStage(block *hcl.Block) (StageRef, error) {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return StageRef{}, fmt.Errorf("invalid %s block: %w", block.Type, diags)
	}
	params := make(Params, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return StageRef{}, fmt.Errorf("%s %q: parameter %q must be a literal value: %w", block.Type, block.Labels[0], name, diags)
		}
		params[name] = v
	}
	return StageRef{Engine: block.Labels[0], Params: params}, nil
}

// finalize applies defaults that depend on other fields.
func (c *Control) finalize() {
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.SplitSeed == 0 {
		c.SplitSeed = c.Seed
	}
	if c.Direction == "" {
		c.Direction = DirectionMinimize
	}
	c.Execution.Normalize()
	if c.Execution.Adaptive != nil {
		c.Execution.Adaptive.Normalize()
	}
}
