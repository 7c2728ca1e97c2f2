package hcl

import (
	"time"

	"github.com/hashicorp/hcl/v2"

	"github.com/cwobiora/oncoflow/internal/config"
)

// translate converts the parsed HCL schema into the format-agnostic model and
// applies all validation that does not require graph context.
func translate(f *File) (*config.Model, error) {
	model := &config.Model{}

	seenInputs := make(map[string]bool)
	for _, in := range f.Inputs {
		if seenInputs[in.Name] {
			return nil, config.Errorf("duplicate input artifact %q", in.Name)
		}
		seenInputs[in.Name] = true
		model.Inputs = append(model.Inputs, &config.ExternalInput{Name: in.Name, Path: in.Path})
	}

	seenStages := make(map[string]bool)
	for _, s := range f.Stages {
		if seenStages[s.Name] {
			return nil, config.Errorf("duplicate stage %q", s.Name)
		}
		seenStages[s.Name] = true

		stage, err := translateStage(s)
		if err != nil {
			return nil, err
		}
		model.Stages = append(model.Stages, stage)
	}

	return model, nil
}

// attrAbsent reports whether an optional expression attribute was omitted.
// gohcl fills absent optional hcl.Expression fields with a synthetic
// expression that statically evaluates to null, rather than leaving them nil.
func attrAbsent(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	val, diags := expr.Value(nil)
	return !diags.HasErrors() && val.IsNull()
}

func translateStage(s *Stage) (*config.Stage, error) {
	stage := &config.Stage{
		Name:      s.Name,
		Image:     s.Image,
		Inputs:    s.Inputs,
		After:     s.After,
		PerSample: s.PerSample,
		Enabled:   true,
	}
	if s.Enabled != nil {
		stage.Enabled = *s.Enabled
	}

	command, diags := hcl.ExprList(s.Command)
	if diags.HasErrors() {
		return nil, config.Errorf("stage %q: command must be a list of strings: %s", s.Name, diags.Error())
	}
	if len(command) == 0 {
		return nil, config.Errorf("stage %q: command must not be empty", s.Name)
	}
	stage.Command = command

	if !attrAbsent(s.Env) {
		pairs, diags := hcl.ExprMap(s.Env)
		if diags.HasErrors() {
			return nil, config.Errorf("stage %q: env must be a map: %s", s.Name, diags.Error())
		}
		stage.Env = make(map[string]hcl.Expression, len(pairs))
		for _, pair := range pairs {
			key, err := keyString(pair.Key)
			if err != nil {
				return nil, config.Errorf("stage %q: %v", s.Name, err)
			}
			stage.Env[key] = pair.Value
		}
	}

	if s.Resources != nil {
		stage.Resources = config.ResourceSpec{
			Cpus:     s.Resources.Cpus,
			MemoryMB: s.Resources.MemoryMB,
		}
		if s.Resources.Walltime != "" {
			walltime, err := time.ParseDuration(s.Resources.Walltime)
			if err != nil {
				return nil, config.Errorf("stage %q: invalid walltime %q", s.Name, s.Resources.Walltime)
			}
			stage.Resources.Walltime = walltime
		}
	}
	if stage.Resources.Cpus <= 0 {
		stage.Resources.Cpus = 1
	}

	seenOutputs := make(map[string]bool)
	for _, out := range s.Outputs {
		if seenOutputs[out.Name] {
			return nil, config.Errorf("stage %q: duplicate output artifact %q", s.Name, out.Name)
		}
		seenOutputs[out.Name] = true
		stage.Outputs = append(stage.Outputs, &config.OutputDecl{Name: out.Name, Path: out.Path})
	}

	if s.Barrier != nil {
		if s.Barrier.Arity < 1 {
			return nil, config.Errorf("stage %q: barrier arity must be at least 1", s.Name)
		}
		barrier := &config.BarrierDecl{Arity: s.Barrier.Arity}
		switch config.JoinPolicy(s.Barrier.Join) {
		case config.JoinSameSample, config.JoinCross:
			barrier.Join = config.JoinPolicy(s.Barrier.Join)
		case "":
			// Left empty: only legal when the pipeline never fans out per
			// sample. The graph builder rejects undeclared pairing as soon
			// as a per-sample branch feeds this barrier.
		default:
			return nil, config.Errorf("stage %q: unknown join policy %q", s.Name, s.Barrier.Join)
		}
		stage.Barrier = barrier
	}

	return stage, nil
}
