// Package graph compiles a pipeline declaration into a validated stage
// dependency graph. Dependencies are implied by artifact production and
// consumption: every `artifact.<name>` reference in a stage's inputs, command
// or env links the stage to the artifact's producer. Per-sample stages expand
// into one node per sample; barrier stages join branches with an explicit
// arity and pairing policy.
//
// Building is a pure transformation: no filesystem access, no side effects.
package graph
