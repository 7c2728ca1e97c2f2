package graph

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/ctxlog"
	"github.com/cwobiora/oncoflow/internal/samples"
)

// producer records which node produces each instance of a named artifact.
type producer struct {
	stage     *config.Stage
	perSample bool
	// bySample maps sample ID (empty for singleton stages) to the producing
	// node and the resolved artifact.
	bySample map[string]producedArtifact
}

type producedArtifact struct {
	node     *Node
	artifact Artifact
}

// builder carries the intermediate state of one Build call.
type builder struct {
	model     *config.Model
	pairs     []samples.Sample
	runCtx    *config.RunContext
	graph     *Graph
	producers map[string]*producer
	external  map[string]Artifact
	// byStage maps a stage name to its expanded instances, for `after` links.
	byStage map[string][]*Node
}

// Build compiles a pipeline declaration into a validated dependency graph for
// the given sample set and run context. It is a pure transformation; all
// validation failures are ConfigurationErrors.
func Build(ctx context.Context, model *config.Model, pairs []samples.Sample, runCtx *config.RunContext) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "stages", len(model.Stages), "samples", len(pairs))

	b := &builder{
		model:     model,
		pairs:     pairs,
		runCtx:    runCtx,
		graph:     &Graph{Nodes: make(map[string]*Node)},
		producers: make(map[string]*producer),
		external:  make(map[string]Artifact),
		byStage:   make(map[string][]*Node),
	}

	if err := b.validateOverrides(); err != nil {
		return nil, err
	}
	for _, in := range model.Inputs {
		b.external[in.Name] = Artifact{Name: in.Name, Path: b.absPath(in.Path)}
	}

	if err := b.createNodes(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Build: node creation complete.", "node_count", len(b.graph.Nodes))

	if err := b.linkNodes(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Build: node linking complete.")

	if err := b.validateBarriers(); err != nil {
		return nil, err
	}
	if err := b.validateAcyclic(); err != nil {
		return nil, err
	}
	b.graph.finalize()
	logger.Debug("Build: graph construction successful.")
	return b.graph, nil
}

func (b *builder) validateOverrides() error {
	declared := make(map[string]bool, len(b.model.Stages))
	for _, s := range b.model.Stages {
		declared[s.Name] = true
	}
	for name := range b.runCtx.Overrides {
		if !declared[name] {
			return config.Errorf("resource override targets unknown stage %q", name)
		}
	}
	return nil
}

// enabled reports whether a stage participates in this run: declared enabled
// and not skipped by run configuration.
func (b *builder) enabled(s *config.Stage) bool {
	if !s.Enabled {
		return false
	}
	for _, skip := range b.runCtx.SkipStages {
		if skip == s.Name {
			return false
		}
	}
	return true
}

// createNodes is the first pass: expand stages into instances, resolve their
// output artifact paths and index the producers.
func (b *builder) createNodes(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for declIndex, s := range b.model.Stages {
		if !b.enabled(s) {
			logger.Debug("Stage disabled for this run.", "stage", s.Name)
			continue
		}

		instances := []samples.Sample{{}}
		if s.PerSample {
			if len(b.pairs) == 0 {
				return config.Errorf("stage %q is per-sample but the run has no samples", s.Name)
			}
			instances = b.pairs
		}

		resources := s.Resources
		if o, ok := b.runCtx.Overrides[s.Name]; ok {
			resources = o.Apply(resources)
		}

		for _, sample := range instances {
			node := &Node{
				ID:        nodeID(s.Name, sample.ID),
				StageName: s.Name,
				SampleID:  sample.ID,
				Image:     s.Image,
				Resources: resources,
				Preds:     make(map[string]*Node),
				Succs:     make(map[string]*Node),
				declIndex: declIndex,
			}
			if s.Barrier != nil {
				node.BarrierArity = s.Barrier.Arity
			}

			evalCtx := b.evalContext(sample, nil)
			for _, out := range s.Outputs {
				path, err := b.evalString(out.Path, evalCtx)
				if err != nil {
					return config.Errorf("stage %q output %q: %v", s.Name, out.Name, err)
				}
				artifact := Artifact{Name: out.Name, Path: b.absPath(path)}
				node.Outputs = append(node.Outputs, artifact)

				p, ok := b.producers[out.Name]
				if !ok {
					p = &producer{stage: s, perSample: s.PerSample, bySample: make(map[string]producedArtifact)}
					b.producers[out.Name] = p
				} else if p.stage != s {
					return config.Errorf("artifact %q is produced by both stage %q and stage %q", out.Name, p.stage.Name, s.Name)
				}
				if _, clash := b.external[out.Name]; clash {
					return config.Errorf("artifact %q is both an external input and an output of stage %q", out.Name, s.Name)
				}
				p.bySample[sample.ID] = producedArtifact{node: node, artifact: artifact}
			}

			b.graph.Nodes[node.ID] = node
			b.byStage[s.Name] = append(b.byStage[s.Name], node)
		}
	}
	return nil
}

// linkNodes is the second pass: derive dependency edges from artifact
// references and `after` declarations, then evaluate each node's command and
// env against its resolved artifact scope.
func (b *builder) linkNodes(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for _, s := range b.model.Stages {
		for _, node := range b.byStage[s.Name] {
			names := referencedArtifacts(s)
			ownOutputs := make(map[string]Artifact, len(node.Outputs))
			for _, out := range node.Outputs {
				ownOutputs[out.Name] = out
			}

			for _, name := range names {
				if _, own := ownOutputs[name]; own {
					continue
				}
				if err := b.linkArtifact(ctx, node, s, name); err != nil {
					return err
				}
			}

			for _, after := range s.After {
				if err := b.linkAfter(node, s, after); err != nil {
					return err
				}
			}

			if err := b.evaluateNode(node, s, ownOutputs); err != nil {
				return err
			}
			logger.Debug("Node linked.", "node", node.ID, "preds", len(node.Preds))
		}
	}
	return nil
}

// linkArtifact links one consumed artifact name, applying the per-sample
// pairing rules.
func (b *builder) linkArtifact(ctx context.Context, node *Node, s *config.Stage, name string) error {
	if ext, ok := b.external[name]; ok {
		node.Inputs = append(node.Inputs, ext)
		return nil
	}

	p, ok := b.producers[name]
	if !ok {
		return config.Errorf("stage %q consumes artifact %q, which no stage produces and no input declares", s.Name, name)
	}

	link := func(pa producedArtifact) {
		if _, exists := node.Preds[pa.node.ID]; !exists {
			node.Preds[pa.node.ID] = pa.node
			pa.node.Succs[node.ID] = node
		}
		node.Inputs = append(node.Inputs, pa.artifact)
	}

	switch {
	case !p.perSample:
		link(p.bySample[""])
	case s.PerSample:
		// Same-sample join: each instance consumes the instance expanded
		// from its own sample.
		link(p.bySample[node.SampleID])
	default:
		// A singleton stage fanning in per-sample branches must declare the
		// pairing explicitly via a cross-join barrier.
		if s.Barrier == nil || s.Barrier.Join != config.JoinCross {
			return config.Errorf("stage %q fans in per-sample artifact %q without declaring a cross-join barrier", s.Name, name)
		}
		ids := make([]string, 0, len(p.bySample))
		for sid := range p.bySample {
			ids = append(ids, sid)
		}
		sort.Strings(ids)
		for _, sid := range ids {
			link(p.bySample[sid])
		}
	}
	return nil
}

// linkAfter links an ordering-only edge declared with `after`.
func (b *builder) linkAfter(node *Node, s *config.Stage, after string) error {
	targets, ok := b.byStage[after]
	if !ok {
		return config.Errorf("stage %q declares after = %q, which is not an enabled stage", s.Name, after)
	}
	for _, target := range targets {
		// Per-sample chains pair with their own sample; everything else
		// waits on all instances.
		if s.PerSample && target.SampleID != "" && target.SampleID != node.SampleID {
			continue
		}
		if _, exists := node.Preds[target.ID]; !exists {
			node.Preds[target.ID] = target
			target.Succs[node.ID] = node
		}
	}
	return nil
}

// evaluateNode resolves the node's command and env to concrete strings.
func (b *builder) evaluateNode(node *Node, s *config.Stage, ownOutputs map[string]Artifact) error {
	scope := make(map[string]cty.Value)
	for name, ext := range b.external {
		scope[name] = cty.StringVal(ext.Path)
	}
	for name, p := range b.producers {
		if pa, ok := p.bySample[node.SampleID]; ok {
			scope[name] = cty.StringVal(pa.artifact.Path)
		} else if pa, ok := p.bySample[""]; ok {
			scope[name] = cty.StringVal(pa.artifact.Path)
		}
		// Per-sample artifacts consumed through a cross join stay out of
		// scope: fan-in commands address directories, not single files.
	}
	for name, out := range ownOutputs {
		scope[name] = cty.StringVal(out.Path)
	}

	sample := samples.Sample{}
	if node.SampleID != "" {
		for _, pair := range b.pairs {
			if pair.ID == node.SampleID {
				sample = pair
				break
			}
		}
	}
	evalCtx := b.evalContext(sample, scope)

	for _, expr := range s.Command {
		arg, err := b.evalString(expr, evalCtx)
		if err != nil {
			return config.Errorf("stage %q command: %v", s.Name, err)
		}
		node.Command = append(node.Command, arg)
	}

	if len(s.Env) > 0 {
		node.Env = make(map[string]string, len(s.Env))
		for key, expr := range s.Env {
			value, err := b.evalString(expr, evalCtx)
			if err != nil {
				return config.Errorf("stage %q env %q: %v", s.Name, key, err)
			}
			node.Env[key] = value
		}
	}
	return nil
}

// evalContext builds the evaluation scope for one stage instance.
func (b *builder) evalContext(sample samples.Sample, artifacts map[string]cty.Value) *hcl.EvalContext {
	vars := map[string]cty.Value{
		"workdir": cty.StringVal(b.runCtx.Workdir),
	}
	if sample.ID != "" {
		vars["sample"] = cty.ObjectVal(map[string]cty.Value{
			"id":     cty.StringVal(sample.ID),
			"tumour": cty.StringVal(sample.Tumour),
			"normal": cty.StringVal(sample.Normal),
		})
	}
	if len(artifacts) > 0 {
		vars["artifact"] = cty.ObjectVal(artifacts)
	} else {
		vars["artifact"] = cty.EmptyObjectVal
	}
	return &hcl.EvalContext{Variables: vars}
}

func (b *builder) evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", config.Errorf("expression evaluated to null")
	}
	return val.AsString(), nil
}

func (b *builder) absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.runCtx.Workdir, path)
}

// referencedArtifacts collects every `artifact.<name>` traversal reachable
// from a stage's inputs, command and env expressions, in first-reference
// order.
func referencedArtifacts(s *config.Stage) []string {
	var names []string
	seen := make(map[string]bool)

	collect := func(expr hcl.Expression) {
		if expr == nil {
			return
		}
		for _, traversal := range expr.Variables() {
			if traversal.RootName() != "artifact" || len(traversal) < 2 {
				continue
			}
			attr, ok := traversal[1].(hcl.TraverseAttr)
			if !ok {
				continue
			}
			if !seen[attr.Name] {
				seen[attr.Name] = true
				names = append(names, attr.Name)
			}
		}
	}

	collect(s.Inputs)
	for _, expr := range s.Command {
		collect(expr)
	}
	for _, expr := range s.Env {
		collect(expr)
	}
	return names
}
