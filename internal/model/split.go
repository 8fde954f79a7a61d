package model

import (
	"encoding/json"
	"fmt"
)

// Split is one train/test partition of the workflow dataset. Train and Test
// are disjoint row indices into the workflow frame.
type Split struct {
	Key   string `json:"key"`
	Train []int  `json:"train"`
	Test  []int  `json:"test"`
}

// SplitSet is an ordered mapping from split key to Split. Iteration order is
// insertion order, and result collections produced by execution strategies
// are always keyed identically to it.
type SplitSet struct {
	keys   []string
	splits map[string]Split
}

// NewSplitSet returns an empty split set.
func NewSplitSet() *SplitSet {
	return &SplitSet{splits: make(map[string]Split)}
}

// Add appends a split. Re-adding an existing key replaces the split in place
// without changing its position.
func (s *SplitSet) Add(sp Split) error {
	if sp.Key == "" {
		return fmt.Errorf("split key must not be empty")
	}
	if _, ok := s.splits[sp.Key]; !ok {
		s.keys = append(s.keys, sp.Key)
	}
	s.splits[sp.Key] = sp
	return nil
}

// Len returns the number of splits.
func (s *SplitSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the split keys in insertion order.
func (s *SplitSet) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Get returns the split for key.
func (s *SplitSet) Get(key string) (Split, bool) {
	sp, ok := s.splits[key]
	return sp, ok
}

// All returns the splits in insertion order.
func (s *SplitSet) All() []Split {
	out := make([]Split, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.splits[k])
	}
	return out
}

// MarshalJSON encodes the set as an ordered array, preserving key order
// across a persistence round trip.
func (s *SplitSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.All())
}

// UnmarshalJSON decodes the ordered-array form produced by MarshalJSON.
func (s *SplitSet) UnmarshalJSON(data []byte) error {
	var splits []Split
	if err := json.Unmarshal(data, &splits); err != nil {
		return err
	}
	s.keys = nil
	s.splits = make(map[string]Split, len(splits))
	for _, sp := range splits {
		if err := s.Add(sp); err != nil {
			return err
		}
	}
	return nil
}

// SplitOutput is the standardized output of a split engine.
type SplitOutput struct {
	SplitType string    `json:"split_type"`
	Splits    *SplitSet `json:"splits"`
	Seed      int64     `json:"seed"`
}
