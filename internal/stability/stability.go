// Package stability decides whether a running sequence of scalar metric
// observations has converged. Eleven interchangeable rules share one
// signature; adaptive execution strategies select a rule by name after each
// completed iteration.
package stability

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// epsilon guards divisions against zero-valued denominators.
const epsilon = 1e-8

// ErrShortHistory is returned when the observation history is shorter than
// window+1; judging stability over the full window would be meaningless.
var ErrShortHistory = errors.New("observation history shorter than window+1")

// ErrUnknownRule is returned for a rule name that is not registered.
var ErrUnknownRule = errors.New("unknown stability rule")

// AggFunc aggregates a range of observations into one scalar. Callers supply
// it for the custom_relative and custom_absolute rules.
type AggFunc func([]float64) float64

// Result is the outcome of one stability evaluation.
type Result struct {
	Stable    bool    `json:"is_stable"`
	Value     float64 `json:"stability_value"`
	Threshold float64 `json:"threshold_value"`
	Rule      string  `json:"strategy_name"`
}

// aggRule compares an aggregate of the trailing window against the same
// aggregate over the full history, absolutely or relatively.
type aggRule struct {
	agg      AggFunc
	relative bool
	custom   bool
}

var aggRules = map[string]aggRule{
	"custom_relative": {relative: true, custom: true},
	"custom_absolute": {custom: true},
	"mean_relative":   {agg: Mean, relative: true},
	"mean_absolute":   {agg: Mean},
	"sd_relative":     {agg: SD, relative: true},
	"sd_absolute":     {agg: SD},
	"mad_relative":    {agg: MAD, relative: true},
	"mad_absolute":    {agg: MAD},
	"cv_relative":     {agg: CV, relative: true},
	"cv_absolute":     {agg: CV},
}

const cohenRule = "cohen_absolute"

// Rules returns all rule names in sorted order.
func Rules() []string {
	names := make([]string, 0, len(aggRules)+1)
	for name := range aggRules {
		names = append(names, name)
	}
	names = append(names, cohenRule)
	sort.Strings(names)
	return names
}

// Evaluate applies the named rule to the observation history. The history
// must hold at least window+1 values; custom is consulted only by the
// custom_* rules and must be non-nil for them.
func Evaluate(rule string, values []float64, threshold float64, window int, custom AggFunc) (Result, error) {
	if window < 1 {
		return Result{}, fmt.Errorf("window must be at least 1, got %d", window)
	}
	if len(values) < window+1 {
		return Result{}, fmt.Errorf("%w: have %d observations, rule %q with window %d needs %d",
			ErrShortHistory, len(values), rule, window, window+1)
	}

	if rule == cohenRule {
		return evaluateCohen(values, threshold, window), nil
	}

	spec, ok := aggRules[rule]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownRule, rule, Rules())
	}
	agg := spec.agg
	if spec.custom {
		if custom == nil {
			return Result{}, fmt.Errorf("rule %q requires a custom aggregation function", rule)
		}
		agg = custom
	}

	global := agg(values)
	windowed := agg(values[len(values)-window:])

	value := math.Abs(windowed - global)
	if spec.relative {
		denom := math.Abs(global)
		if denom < epsilon {
			denom = epsilon
		}
		value /= denom
	}

	return Result{
		Stable:    value < threshold,
		Value:     value,
		Threshold: threshold,
		Rule:      rule,
	}, nil
}

// evaluateCohen splits the history into the trailing window and everything
// before it and computes Cohen's d between the two ranges. With fewer than
// two pre-window observations no pooled spread exists yet, so the rule
// reports unstable with an infinite stability value.
func evaluateCohen(values []float64, threshold float64, window int) Result {
	recent := values[len(values)-window:]
	rest := values[:len(values)-window]

	if len(rest) < 2 {
		return Result{
			Stable:    false,
			Value:     math.Inf(1),
			Threshold: threshold,
			Rule:      cohenRule,
		}
	}

	sdRecent := SD(recent)
	sdRest := SD(rest)
	pooled := math.Sqrt((sdRecent*sdRecent + sdRest*sdRest) / 2)
	if pooled < epsilon {
		pooled = epsilon
	}
	d := math.Abs(Mean(recent)-Mean(rest)) / pooled

	return Result{
		Stable:    d < threshold,
		Value:     d,
		Threshold: threshold,
		Rule:      cohenRule,
	}
}
