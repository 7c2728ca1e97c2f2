package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
)

// Model is the unified, format-agnostic representation of a pipeline
// declaration: the external run inputs plus every declared stage, in
// declaration order.
type Model struct {
	Inputs []*ExternalInput
	Stages []*Stage
}

// ExternalInput declares an artifact supplied by the operator rather than
// produced by a stage, e.g. a reference genome or a capture-target BED file.
type ExternalInput struct {
	Name string
	Path string
}

// Stage is the format-agnostic representation of a `stage` block.
//
// Command, Env, Inputs and output paths stay as unevaluated expressions until
// graph build time, when they are evaluated once per stage instance against
// the artifact table and (for per-sample stages) the sample object.
type Stage struct {
	Name      string
	Image     string
	Command   []hcl.Expression
	Env       map[string]hcl.Expression
	Resources ResourceSpec
	Inputs    hcl.Expression
	Outputs   []*OutputDecl
	After     []string
	PerSample bool
	Enabled   bool
	Barrier   *BarrierDecl
}

// OutputDecl declares one artifact produced by a stage. The path expression
// is resolved relative to the run's working directory.
type OutputDecl struct {
	Name string
	Path hcl.Expression
}

// BarrierDecl marks a stage as a join point that requires a fixed number of
// upstream completions before it may become ready.
type BarrierDecl struct {
	Arity int
	Join  JoinPolicy
}

// JoinPolicy selects how a barrier pairs upstream branches when the pipeline
// fans out per sample.
type JoinPolicy string

const (
	// JoinSameSample links a per-sample barrier instance only to upstream
	// instances expanded from the same sample.
	JoinSameSample JoinPolicy = "same_sample"
	// JoinCross links a barrier to every instance of its upstream artifacts
	// across all samples.
	JoinCross JoinPolicy = "cross"
)

// ResourceSpec is the declared resource envelope of one stage execution.
type ResourceSpec struct {
	Cpus     int
	MemoryMB int
	Walltime time.Duration
}

// Add returns the element-wise sum of two specs. Walltime does not
// accumulate; it is a per-stage bound, not a pooled resource.
func (r ResourceSpec) Add(other ResourceSpec) ResourceSpec {
	return ResourceSpec{
		Cpus:     r.Cpus + other.Cpus,
		MemoryMB: r.MemoryMB + other.MemoryMB,
	}
}

// Fits reports whether the spec fits inside the given ceiling.
func (r ResourceSpec) Fits(ceiling ResourceSpec) bool {
	return r.Cpus <= ceiling.Cpus && r.MemoryMB <= ceiling.MemoryMB
}
