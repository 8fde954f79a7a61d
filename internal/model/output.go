package model

import "fmt"

// BodyOutput is the opaque, stage-specific result of one pipeline-body run
// over a single split. The orchestration core only ever looks at the
// "metrics" entry; everything else passes through untouched.
type BodyOutput map[string]any

// Metrics returns the metric table of a body output, coercing the value
// shapes that survive a JSON round trip through the job workspace.
func (o BodyOutput) Metrics() map[string]float64 {
	raw, ok := o["metrics"]
	if !ok {
		return nil
	}
	switch m := raw.(type) {
	case map[string]float64:
		return m
	case map[string]any:
		out := make(map[string]float64, len(m))
		for k, v := range m {
			f, ok := v.(float64)
			if !ok {
				continue
			}
			out[k] = f
		}
		return out
	default:
		return nil
	}
}

// Metric extracts one named scalar metric from the body output.
func (o BodyOutput) Metric(name string) (float64, error) {
	metrics := o.Metrics()
	if metrics == nil {
		return 0, fmt.Errorf("pipeline result carries no metrics table")
	}
	v, ok := metrics[name]
	if !ok {
		return 0, fmt.Errorf("pipeline result has no metric %q", name)
	}
	return v, nil
}

// ExecutionOutput is the standardized output of one execution strategy
// invocation. ContinueWorkflow is false only for deferred (handed-off)
// execution; every in-process strategy returns true.
type ExecutionOutput struct {
	ExecutionType    string                `json:"execution_type"`
	WorkflowResults  map[string]BodyOutput `json:"workflow_results"`
	ContinueWorkflow bool                  `json:"continue_workflow"`
	Specific         any                   `json:"specific_output,omitempty"`
}

// EvalOutput is the standardized output of an evaluation engine.
type EvalOutput struct {
	Metrics   map[string]float64 `json:"metrics"`
	EvalType  string             `json:"eval_type"`
	InputData string             `json:"input_data"`
}

// TransformOutput is the standardized output of a stage-transform engine.
// Frame is the transformed dataset; the input frame is never modified.
type TransformOutput struct {
	TransformType string `json:"transform_type"`
	Frame         *Frame `json:"frame"`
}
