package executor

import (
	"fmt"
	"sort"

	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/graph"
)

// buildArgv translates a stage node into the host command for the configured
// runtime. Input artifact paths are bound read-only; only the run working
// directory is writable. Stage env values are injected explicitly through
// runtime flags, never through the orchestrator's own environment.
func buildArgv(runtime config.RuntimeKind, workdir string, node *graph.Node) ([]string, error) {
	switch runtime {
	case config.RuntimeLocal:
		return node.Command, nil
	case config.RuntimeDocker:
		return dockerArgv(workdir, node), nil
	case config.RuntimeSingularity:
		return singularityArgv(workdir, node), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", runtime)
	}
}

func dockerArgv(workdir string, node *graph.Node) []string {
	argv := []string{"docker", "run", "--rm"}
	if node.Resources.Cpus > 0 {
		argv = append(argv, "--cpus", fmt.Sprintf("%d", node.Resources.Cpus))
	}
	if node.Resources.MemoryMB > 0 {
		argv = append(argv, "--memory", fmt.Sprintf("%dm", node.Resources.MemoryMB))
	}
	argv = append(argv, "-v", fmt.Sprintf("%s:%s:rw", workdir, workdir))
	for _, path := range readOnlyBinds(workdir, node) {
		argv = append(argv, "-v", fmt.Sprintf("%s:%s:ro", path, path))
	}
	for _, kv := range envPairs(node) {
		argv = append(argv, "-e", kv)
	}
	argv = append(argv, node.Image)
	return append(argv, node.Command...)
}

func singularityArgv(workdir string, node *graph.Node) []string {
	argv := []string{"singularity", "exec", "--contain"}
	argv = append(argv, "--bind", fmt.Sprintf("%s:%s:rw", workdir, workdir))
	for _, path := range readOnlyBinds(workdir, node) {
		argv = append(argv, "--bind", fmt.Sprintf("%s:%s:ro", path, path))
	}
	for _, kv := range envPairs(node) {
		argv = append(argv, "--env", kv)
	}
	argv = append(argv, node.Image)
	return append(argv, node.Command...)
}

// readOnlyBinds lists the input paths that need read-only mounts: everything
// the stage consumes that lives outside the writable working directory.
func readOnlyBinds(workdir string, node *graph.Node) []string {
	seen := make(map[string]bool)
	var binds []string
	for _, in := range node.Inputs {
		if within(workdir, in.Path) || seen[in.Path] {
			continue
		}
		seen[in.Path] = true
		binds = append(binds, in.Path)
	}
	sort.Strings(binds)
	return binds
}

func within(dir, path string) bool {
	return len(path) > len(dir) && path[:len(dir)] == dir && path[len(dir)] == '/'
}

// envPairs renders the stage's declared env as sorted KEY=VALUE strings.
func envPairs(node *graph.Node) []string {
	keys := make([]string, 0, len(node.Env))
	for key := range node.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+node.Env[key])
	}
	return pairs
}
