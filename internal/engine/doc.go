// Package engine provides the central registry binding string keys to
// contract-validated engines, one per pipeline role.
//
// An engine is registered as a bundle of three members: the wrapper (the
// standardized, role-typed entry point the rest of the system calls), the
// core (unconstrained internal logic), and a defaults callable producing the
// engine's parameter baseline. Registration validates the bundle — presence
// of all three members, the wrapper's exact role signature, and for cheap
// roles a functional smoke test against synthetic data — and skips the
// engine with a logged warning when validation fails. A failed registration
// never takes the process down.
//
// Registration happens only during the single-threaded startup phase, never
// concurrently with dispatch, so the registry carries no locks.
package engine
