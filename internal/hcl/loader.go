// Package hcl loads pipeline declarations written in HCL and translates them
// into the format-agnostic config model.
package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/ctxlog"
	"github.com/cwobiora/oncoflow/internal/fsutil"
)

// Loader parses .hcl pipeline files. It implements config.Loader.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new HCL pipeline loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load reads the pipeline declaration at path, which may be a single .hcl
// file or a directory of them, and returns the translated model. Multiple
// files merge into one declaration; stage order follows file walk order, then
// in-file declaration order.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("scanning pipeline directory: %w", err)
		}
		if len(files) == 0 {
			return nil, config.Errorf("no .hcl pipeline files found under %s", path)
		}
	}

	merged := &File{}
	for _, file := range files {
		logger.Debug("Parsing pipeline file.", "file", file)
		parsed, diags := l.parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, config.Errorf("parsing %s: %s", file, diags.Error())
		}

		var f File
		if diags := gohcl.DecodeBody(parsed.Body, nil, &f); diags.HasErrors() {
			return nil, config.Errorf("decoding %s: %s", file, diags.Error())
		}
		merged.Inputs = append(merged.Inputs, f.Inputs...)
		merged.Stages = append(merged.Stages, f.Stages...)
	}

	model, err := translate(merged)
	if err != nil {
		return nil, err
	}
	logger.Debug("Pipeline declaration loaded.", "stages", len(model.Stages), "inputs", len(model.Inputs))
	return model, nil
}

// keyString resolves an env map key, which HCL may give us either as a naked
// identifier or as a quoted string expression.
func keyString(expr hcl.Expression) (string, error) {
	if kw := hcl.ExprAsKeyword(expr); kw != "" {
		return kw, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("env key: %s", diags.Error())
	}
	return val.AsString(), nil
}
