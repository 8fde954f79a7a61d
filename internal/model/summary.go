package model

import "sort"

// MetricSummary aggregates one metric across all splits of a run.
type MetricSummary struct {
	Mean     float64            `json:"mean" yaml:"mean"`
	SD       float64            `json:"sd" yaml:"sd"`
	PerSplit map[string]float64 `json:"per_split" yaml:"per_split"`
}

// RunSummary is the post-execution view of a finished run, consumed by
// report and publish engines.
type RunSummary struct {
	Workflow      string                    `json:"workflow" yaml:"workflow"`
	ExecutionType string                    `json:"execution_type" yaml:"execution_type"`
	SplitKeys     []string                  `json:"split_keys" yaml:"split_keys"`
	Metrics       map[string]*MetricSummary `json:"metrics" yaml:"metrics"`
}

// MetricNames returns the summarized metric names in a stable order.
func (s *RunSummary) MetricNames() []string {
	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
