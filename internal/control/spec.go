package control

import (
	"fmt"
	"time"
)

// Backend identifiers for the batch-parallel strategy.
const (
	BackendLocal = "local"
	BackendQueue = "queue"
)

// ResourceSpec describes the resources requested for parallel jobs. Fields
// are passed through to the worker-pool or job-queue backend opaquely; the
// core only validates presence and basic sanity.
type ResourceSpec struct {
	CPUs        int      `hcl:"cpus,optional" yaml:"cpus" json:"cpus"`
	Memory      string   `hcl:"memory,optional" yaml:"memory,omitempty" json:"memory,omitempty"`
	Walltime    string   `hcl:"walltime,optional" yaml:"walltime,omitempty" json:"walltime,omitempty"`
	Modules     []string `hcl:"modules,optional" yaml:"modules,omitempty" json:"modules,omitempty"`
	RegistryDir string   `hcl:"registry_dir,optional" yaml:"registry_dir,omitempty" json:"registry_dir,omitempty"`
}

// WalltimeDuration parses the walltime ceiling. Zero means no ceiling.
func (r *ResourceSpec) WalltimeDuration() (time.Duration, error) {
	if r == nil || r.Walltime == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.Walltime)
	if err != nil {
		return 0, fmt.Errorf("invalid walltime %q: %w", r.Walltime, err)
	}
	return d, nil
}

// Validate checks the resource spec against the selected backend.
func (r *ResourceSpec) Validate(backend string) error {
	if r == nil {
		return nil
	}
	if r.CPUs < 0 {
		return fmt.Errorf("resources: cpus must not be negative, got %d", r.CPUs)
	}
	if _, err := r.WalltimeDuration(); err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	return nil
}

// QueueSpec locates the external job-queue scheduler.
type QueueSpec struct {
	URL       string `hcl:"url" yaml:"url" json:"url"`
	Namespace string `hcl:"namespace,optional" yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// AdaptiveSpec configures the convergence-driven split loop.
type AdaptiveSpec struct {
	Rule      string  `hcl:"rule,optional" yaml:"rule" json:"rule"`
	Threshold float64 `hcl:"threshold,optional" yaml:"threshold" json:"threshold"`
	Window    int     `hcl:"window,optional" yaml:"window" json:"window"`
	MinSplits int     `hcl:"min_splits,optional" yaml:"min_splits" json:"min_splits"`
	MaxSplits int     `hcl:"max_splits" yaml:"max_splits" json:"max_splits"`
	BatchSize int     `hcl:"batch_size,optional" yaml:"batch_size" json:"batch_size"`
}

// Normalize fills unset adaptive fields with their defaults.
func (a *AdaptiveSpec) Normalize() {
	if a.Rule == "" {
		a.Rule = "mean_relative"
	}
	if a.Threshold == 0 {
		a.Threshold = 0.05
	}
	if a.Window == 0 {
		a.Window = 3
	}
	if a.MinSplits == 0 {
		a.MinSplits = a.Window + 1
	}
	if a.BatchSize == 0 {
		a.BatchSize = 1
	}
}

// Validate checks the adaptive loop bounds. The stability evaluator needs
// window+1 observations, so min_splits may not undercut that.
func (a *AdaptiveSpec) Validate() error {
	if a == nil {
		return fmt.Errorf("adaptive execution requires an adaptive block")
	}
	if a.Window < 1 {
		return fmt.Errorf("adaptive: window must be at least 1, got %d", a.Window)
	}
	if a.Threshold <= 0 {
		return fmt.Errorf("adaptive: threshold must be positive, got %g", a.Threshold)
	}
	if a.MinSplits < a.Window+1 {
		return fmt.Errorf("adaptive: min_splits (%d) must be at least window+1 (%d)", a.MinSplits, a.Window+1)
	}
	if a.MaxSplits < a.MinSplits {
		return fmt.Errorf("adaptive: max_splits (%d) must be at least min_splits (%d)", a.MaxSplits, a.MinSplits)
	}
	if a.BatchSize < 1 {
		return fmt.Errorf("adaptive: batch_size must be at least 1, got %d", a.BatchSize)
	}
	return nil
}

// SearchSpec configures the scalar hyperparameter walk.
type SearchSpec struct {
	Param          string  `hcl:"param" yaml:"param" json:"param"`
	Start          float64 `hcl:"start" yaml:"start" json:"start"`
	Step           float64 `hcl:"step" yaml:"step" json:"step"`
	MinImprovement float64 `hcl:"min_improvement,optional" yaml:"min_improvement" json:"min_improvement"`
	Direction      string  `hcl:"direction,optional" yaml:"direction,omitempty" json:"direction,omitempty"`
	MaxIterations  int     `hcl:"max_iterations" yaml:"max_iterations" json:"max_iterations"`
}

// Validate checks the search walk configuration.
func (s *SearchSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("parameter-search execution requires a search block")
	}
	if s.Param == "" {
		return fmt.Errorf("search: param must name a pipeline-body parameter")
	}
	if s.Step == 0 {
		return fmt.Errorf("search: step must not be zero")
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("search: max_iterations must be at least 1, got %d", s.MaxIterations)
	}
	switch s.Direction {
	case "", DirectionMinimize, DirectionMaximize:
	default:
		return fmt.Errorf("search: direction must be %q or %q, got %q", DirectionMinimize, DirectionMaximize, s.Direction)
	}
	return nil
}

// Metric optimization directions.
const (
	DirectionMinimize = "minimize"
	DirectionMaximize = "maximize"
)

// ExecutionSpec selects and configures the execution strategy for a run.
type ExecutionSpec struct {
	Strategy   string        `hcl:"strategy" yaml:"strategy" json:"strategy"`
	Backend    string        `hcl:"backend,optional" yaml:"backend" json:"backend"`
	Workers    int           `hcl:"workers,optional" yaml:"workers" json:"workers"`
	HandoffDir string        `hcl:"handoff_dir,optional" yaml:"handoff_dir,omitempty" json:"handoff_dir,omitempty"`
	Resources  *ResourceSpec `hcl:"resources,block" yaml:"resources,omitempty" json:"resources,omitempty"`
	Queue      *QueueSpec    `hcl:"queue,block" yaml:"queue,omitempty" json:"queue,omitempty"`
	Adaptive   *AdaptiveSpec `hcl:"adaptive,block" yaml:"adaptive,omitempty" json:"adaptive,omitempty"`
	Search     *SearchSpec   `hcl:"search,block" yaml:"search,omitempty" json:"search,omitempty"`
}

// Normalize fills unset execution fields with their defaults. Strategies
// invoked outside the loader call it before relying on backend or worker
// settings.
func (e *ExecutionSpec) Normalize() {
	if e.Backend == "" {
		e.Backend = BackendLocal
	}
	if e.Workers == 0 {
		if e.Resources != nil && e.Resources.CPUs > 0 {
			e.Workers = e.Resources.CPUs
		} else {
			e.Workers = 1
		}
	}
}

// Validate checks the execution spec for internal consistency.
func (e *ExecutionSpec) Validate() error {
	if e.Strategy == "" {
		return fmt.Errorf("execution: strategy is required")
	}
	switch e.Backend {
	case BackendLocal, BackendQueue:
	default:
		return fmt.Errorf("execution: backend must be %q or %q, got %q", BackendLocal, BackendQueue, e.Backend)
	}
	if e.Workers < 1 {
		return fmt.Errorf("execution: workers must be at least 1, got %d", e.Workers)
	}
	if e.Backend == BackendQueue && (e.Queue == nil || e.Queue.URL == "") {
		return fmt.Errorf("execution: the %q backend requires a queue block with a url", BackendQueue)
	}
	if err := e.Resources.Validate(e.Backend); err != nil {
		return err
	}
	if e.Adaptive != nil {
		if err := e.Adaptive.Validate(); err != nil {
			return err
		}
	}
	if e.Search != nil {
		if err := e.Search.Validate(); err != nil {
			return err
		}
	}
	return nil
}
