package config

import (
	"fmt"
	"strconv"
	"strings"
)

// RuntimeKind selects the isolation mechanism used to execute stage commands.
type RuntimeKind string

const (
	RuntimeDocker      RuntimeKind = "docker"
	RuntimeSingularity RuntimeKind = "singularity"
	// RuntimeLocal executes the stage command directly on the host. It exists
	// for development and for the test suite; production pipelines run
	// containerized.
	RuntimeLocal RuntimeKind = "local"
)

// RunContext carries everything about one invocation of the pipeline that is
// not part of the pipeline declaration itself. It is constructed once at run
// start and never mutated afterwards.
type RunContext struct {
	Workdir    string
	Resume     bool
	Runtime    RuntimeKind
	Ceiling    ResourceSpec
	Overrides  map[string]ResourceOverride
	SkipStages []string
}

// ResourceOverride adjusts a single stage's declared resource spec for this
// run. Zero fields leave the declared value untouched.
type ResourceOverride struct {
	Cpus     int
	MemoryMB int
}

// Apply returns the declared spec with the override's non-zero fields replaced.
func (o ResourceOverride) Apply(declared ResourceSpec) ResourceSpec {
	out := declared
	if o.Cpus > 0 {
		out.Cpus = o.Cpus
	}
	if o.MemoryMB > 0 {
		out.MemoryMB = o.MemoryMB
	}
	return out
}

// ParseOverride parses a CLI override of the form "stage.cpus=4" or
// "stage.memory_mb=8192" and merges it into the given map.
func ParseOverride(overrides map[string]ResourceOverride, raw string) error {
	key, valueStr, ok := strings.Cut(raw, "=")
	if !ok {
		return fmt.Errorf("invalid override %q: expected stage.field=value", raw)
	}
	stage, field, ok := strings.Cut(key, ".")
	if !ok || stage == "" {
		return fmt.Errorf("invalid override %q: expected stage.field=value", raw)
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return fmt.Errorf("invalid override %q: value must be a positive integer", raw)
	}

	o := overrides[stage]
	switch field {
	case "cpus":
		o.Cpus = value
	case "memory_mb":
		o.MemoryMB = value
	default:
		return fmt.Errorf("invalid override %q: unknown field %q", raw, field)
	}
	overrides[stage] = o
	return nil
}
