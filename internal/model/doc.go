// Package model holds the format-agnostic data contracts shared by every
// stage of a workflow: the data frame, splits and split sets, and the
// standardized outputs produced by split, execution, and evaluation engines.
//
// Keeping these types free of behavior-heavy dependencies lets the engine
// registry, the execution strategies, and the checkpoint protocol all agree
// on one shape without import cycles.
package model
