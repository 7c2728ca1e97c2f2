// Package config defines the format-agnostic model of a pipeline declaration
// and the immutable per-run context. Loaders (currently HCL) translate their
// native schema into this model; the graph builder consumes it.
package config
