package control

import (
	"fmt"

	"github.com/vk/foldrun/internal/model"
)

// StageSnapshot is the serializable form of a StageRef.
type StageSnapshot struct {
	Engine string         `yaml:"engine" json:"engine"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Snapshot is the durable representation of a Control. It is self-sufficient:
// the data frame itself is embedded so a resuming process needs no access to
// the original data path.
type Snapshot struct {
	Name      string `yaml:"name" json:"name"`
	Seed      int64  `yaml:"seed" json:"seed"`
	SplitSeed int64  `yaml:"split_seed" json:"split_seed"`
	Metric    string `yaml:"metric" json:"metric"`
	Direction string `yaml:"direction" json:"direction"`
	DataPath  string `yaml:"data_path,omitempty" json:"data_path,omitempty"`

	Data *model.Frame `yaml:"data,omitempty" json:"data,omitempty"`

	Split     StageSnapshot   `yaml:"split" json:"split"`
	Transform StageSnapshot   `yaml:"transform,omitempty" json:"transform,omitempty"`
	Body      StageSnapshot   `yaml:"body" json:"body"`
	Eval      StageSnapshot   `yaml:"evaluation,omitempty" json:"evaluation,omitempty"`
	Reports   []StageSnapshot `yaml:"reports,omitempty" json:"reports,omitempty"`
	Publish   []StageSnapshot `yaml:"publish,omitempty" json:"publish,omitempty"`

	Execution ExecutionSpec `yaml:"execution" json:"execution"`

	SplitKey string `yaml:"split_key,omitempty" json:"split_key,omitempty"`
	Train    []int  `yaml:"train,omitempty" json:"train,omitempty"`
	Test     []int  `yaml:"test,omitempty" json:"test,omitempty"`
}

// Snapshot converts the control into its durable form.
func (c *Control) Snapshot() *Snapshot {
	return &Snapshot{
		Name:      c.Name,
		Seed:      c.Seed,
		SplitSeed: c.SplitSeed,
		Metric:    c.Metric,
		Direction: c.Direction,
		DataPath:  c.DataPath,
		Data:      c.Data,
		Split:     snapshotStage(c.Split),
		Transform: snapshotStage(c.Transform),
		Body:      snapshotStage(c.Body),
		Eval:      snapshotStage(c.Eval),
		Reports:   snapshotStages(c.Reports),
		Publish:   snapshotStages(c.Publish),
		Execution: c.Execution,
		SplitKey:  c.SplitKey,
		Train:     c.Train,
		Test:      c.Test,
	}
}

// FromSnapshot rebuilds a live control from its durable form.
func FromSnapshot(s *Snapshot) (*Control, error) {
	c := &Control{
		Name:      s.Name,
		Seed:      s.Seed,
		SplitSeed: s.SplitSeed,
		Metric:    s.Metric,
		Direction: s.Direction,
		DataPath:  s.DataPath,
		Data:      s.Data,
		Execution: s.Execution,
		SplitKey:  s.SplitKey,
		Train:     s.Train,
		Test:      s.Test,
	}
	var err error
	if c.Split, err = stageFromSnapshot(s.Split); err != nil {
		return nil, fmt.Errorf("split stage: %w", err)
	}
	if c.Transform, err = stageFromSnapshot(s.Transform); err != nil {
		return nil, fmt.Errorf("transform stage: %w", err)
	}
	if c.Body, err = stageFromSnapshot(s.Body); err != nil {
		return nil, fmt.Errorf("body stage: %w", err)
	}
	if c.Eval, err = stageFromSnapshot(s.Eval); err != nil {
		return nil, fmt.Errorf("evaluation stage: %w", err)
	}
	if c.Reports, err = stagesFromSnapshot(s.Reports); err != nil {
		return nil, fmt.Errorf("report stages: %w", err)
	}
	if c.Publish, err = stagesFromSnapshot(s.Publish); err != nil {
		return nil, fmt.Errorf("publish stages: %w", err)
	}
	c.finalize()
	return c, nil
}

func snapshotStage(s StageRef) StageSnapshot {
	return StageSnapshot{Engine: s.Engine, Params: s.Params.ToNative()}
}

func snapshotStages(stages []StageRef) []StageSnapshot {
	if stages == nil {
		return nil
	}
	out := make([]StageSnapshot, len(stages))
	for i, s := range stages {
		out[i] = snapshotStage(s)
	}
	return out
}

func stageFromSnapshot(s StageSnapshot) (StageRef, error) {
	params, err := ParamsFromNative(s.Params)
	if err != nil {
		return StageRef{}, err
	}
	return StageRef{Engine: s.Engine, Params: params}, nil
}

func stagesFromSnapshot(stages []StageSnapshot) ([]StageRef, error) {
	if stages == nil {
		return nil, nil
	}
	out := make([]StageRef, len(stages))
	for i, s := range stages {
		ref, err := stageFromSnapshot(s)
		if err != nil {
			return nil, err
		}
		out[i] = ref
	}
	return out, nil
}
