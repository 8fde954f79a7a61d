package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	WorkflowPath string // hcl file or directory
	ResumeDir    string // checkpoint directory to resume from

	LogFormat string
	LogLevel  string
	Workers   int // overrides the workflow's worker count when positive
}

// NewConfig validates a Config. Exactly one of WorkflowPath and ResumeDir
// must be set: a run either starts from a workflow or resumes a checkpoint.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" && cfg.ResumeDir == "" {
		return nil, errors.New("either a workflow path or a resume directory is required")
	}
	if cfg.WorkflowPath != "" && cfg.ResumeDir != "" {
		return nil, errors.New("a workflow path and a resume directory are mutually exclusive")
	}
	return &cfg, nil
}
