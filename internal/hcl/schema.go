package hcl

import "github.com/hashicorp/hcl/v2"

// --- Pipeline declaration schema ---

// Input represents an `input` block: an artifact supplied by the operator
// rather than produced by a stage.
type Input struct {
	Name string `hcl:"name,label"`
	Path string `hcl:"path"`
}

// Resources represents the `resources` block of a stage.
type Resources struct {
	Cpus     int    `hcl:"cpus,optional"`
	MemoryMB int    `hcl:"memory_mb,optional"`
	Walltime string `hcl:"walltime,optional"`
}

// Output represents an `output` block: one artifact produced by the stage.
// The path stays an expression so per-sample stages can interpolate the
// sample ID.
type Output struct {
	Name string         `hcl:"name,label"`
	Path hcl.Expression `hcl:"path"`
}

// Barrier represents the `barrier` block of a join stage.
type Barrier struct {
	Arity int    `hcl:"arity"`
	Join  string `hcl:"join,optional"`
}

// Stage represents a `stage` block from a pipeline file.
type Stage struct {
	Name      string         `hcl:"name,label"`
	Image     string         `hcl:"image,optional"`
	Command   hcl.Expression `hcl:"command"`
	Env       hcl.Expression `hcl:"env,optional"`
	Inputs    hcl.Expression `hcl:"inputs,optional"`
	After     []string       `hcl:"after,optional"`
	PerSample bool           `hcl:"per_sample,optional"`
	Enabled   *bool          `hcl:"enabled,optional"`
	Resources *Resources     `hcl:"resources,block"`
	Outputs   []*Output      `hcl:"output,block"`
	Barrier   *Barrier       `hcl:"barrier,block"`
}

// File represents the top-level structure of one pipeline declaration file.
type File struct {
	Inputs []*Input `hcl:"input,block"`
	Stages []*Stage `hcl:"stage,block"`
}
