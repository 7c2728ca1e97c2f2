package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwobiora/oncoflow/internal/cache"
	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/events"
	"github.com/cwobiora/oncoflow/internal/executor"
	"github.com/cwobiora/oncoflow/internal/graph"
	oncohcl "github.com/cwobiora/oncoflow/internal/hcl"
	"github.com/cwobiora/oncoflow/internal/samples"
)

const diamondPipeline = `
stage "caller" {
  command = ["call", artifact.vcf]
  output "vcf" { path = "calls/variants.vcf" }
}

stage "signatures" {
  command = ["sig", artifact.vcf, artifact.sig_report]
  output "sig_report" { path = "sig/report.tsv" }
}

stage "burden" {
  command = ["tmb", artifact.vcf, artifact.tmb_report]
  output "tmb_report" { path = "tmb/report.tsv" }
}

stage "report" {
  command = ["combine", artifact.sig_report, artifact.tmb_report]
  output "summary" { path = "report/summary.tsv" }
  barrier { arity = 2 }
}
`

// harness wires a compiled graph to a fake runner over a temp working
// directory.
type harness struct {
	graph   *graph.Graph
	tracker *cache.Tracker
	runCtx  *config.RunContext
	bus     *events.Bus
	runner  *fakeRunner

	lastScheduler *Scheduler
}

func newHarness(t *testing.T, src string, pairs []samples.Sample, mut func(*config.RunContext)) *harness {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	model, err := oncohcl.NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	runCtx := &config.RunContext{
		Workdir:   filepath.Join(dir, "work"),
		Runtime:   config.RuntimeLocal,
		Ceiling:   config.ResourceSpec{Cpus: 8, MemoryMB: 16384},
		Overrides: map[string]config.ResourceOverride{},
	}
	if mut != nil {
		mut(runCtx)
	}

	g, err := graph.Build(context.Background(), model, pairs, runCtx)
	require.NoError(t, err)

	tracker := cache.NewTracker(runCtx.Workdir)
	return &harness{
		graph:   g,
		tracker: tracker,
		runCtx:  runCtx,
		bus:     events.NewBus(),
		runner:  newFakeRunner(tracker),
	}
}

func (h *harness) run(ctx context.Context) error {
	s := New(h.graph, h.runner, h.tracker, h.bus, h.runCtx, "test-run")
	h.lastScheduler = s
	return s.Run(ctx)
}

// markComplete simulates a prior successful run of a stage: outputs on disk
// plus the completion marker.
func (h *harness) markComplete(t *testing.T, id string) {
	t.Helper()
	node, ok := h.graph.Node(id)
	require.True(t, ok)
	writeOutputs(t, node)
	require.NoError(t, h.tracker.WriteMarker(node))
}

func writeOutputs(t *testing.T, node *graph.Node) {
	t.Helper()
	for _, out := range node.Outputs {
		require.NoError(t, os.MkdirAll(filepath.Dir(out.Path), 0755))
		require.NoError(t, os.WriteFile(out.Path, []byte("data"), 0644))
	}
}

// fakeRunner stands in for the executor: it records dispatch order and peak
// concurrency, and on success upholds the executor contract of writing
// outputs and the completion marker.
type fakeRunner struct {
	tracker *cache.Tracker

	mu            sync.Mutex
	calls         []string
	concurrent    int
	maxConcurrent int
	busyCpus      int
	maxBusyCpus   int

	delay map[string]time.Duration
	fail  map[string]error
}

func newFakeRunner(tracker *cache.Tracker) *fakeRunner {
	return &fakeRunner{
		tracker: tracker,
		delay:   make(map[string]time.Duration),
		fail:    make(map[string]error),
	}
}

func (r *fakeRunner) Run(ctx context.Context, node *graph.Node) error {
	r.mu.Lock()
	r.calls = append(r.calls, node.ID)
	r.concurrent++
	r.busyCpus += node.Resources.Cpus
	if r.concurrent > r.maxConcurrent {
		r.maxConcurrent = r.concurrent
	}
	if r.busyCpus > r.maxBusyCpus {
		r.maxBusyCpus = r.busyCpus
	}
	delay := r.delay[node.ID]
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	r.concurrent--
	r.busyCpus -= node.Resources.Cpus
	failErr := r.fail[node.ID]
	r.mu.Unlock()

	if ctx.Err() != nil {
		return &executor.ExecutionError{Stage: node.ID, Kind: executor.KindCancelled, Err: ctx.Err()}
	}
	if failErr != nil {
		return failErr
	}
	for _, out := range node.Outputs {
		if err := os.MkdirAll(filepath.Dir(out.Path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(out.Path, []byte("data"), 0644); err != nil {
			return err
		}
	}
	return r.tracker.WriteMarker(node)
}

func (r *fakeRunner) callOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func indexOf(list []string, want string) int {
	for i, v := range list {
		if v == want {
			return i
		}
	}
	return -1
}

func TestRun_DispatchNeverPrecedesPredecessors(t *testing.T) {
	h := newHarness(t, diamondPipeline, nil, nil)
	require.NoError(t, h.run(context.Background()))

	calls := h.runner.callOrder()
	require.Len(t, calls, 4)
	assert.Less(t, indexOf(calls, "stage.caller"), indexOf(calls, "stage.signatures"))
	assert.Less(t, indexOf(calls, "stage.caller"), indexOf(calls, "stage.burden"))
	assert.Less(t, indexOf(calls, "stage.signatures"), indexOf(calls, "stage.report"))
	assert.Less(t, indexOf(calls, "stage.burden"), indexOf(calls, "stage.report"))

	for _, id := range h.graph.TopoOrder() {
		assert.Equal(t, StateCompleted, h.lastScheduler.StateOf(id), id)
	}
}

func TestRun_BarrierReadyIndependentOfArrivalOrder(t *testing.T) {
	for name, slow := range map[string]string{
		"signatures finishes last": "stage.signatures",
		"burden finishes last":     "stage.burden",
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, diamondPipeline, nil, nil)
			h.runner.delay[slow] = 150 * time.Millisecond
			require.NoError(t, h.run(context.Background()))

			calls := h.runner.callOrder()
			assert.Equal(t, "stage.report", calls[len(calls)-1])
			assert.Equal(t, StateCompleted, h.lastScheduler.StateOf("stage.report"))
		})
	}
}

func TestRun_FailureSkipsDownstreamWithRootCause(t *testing.T) {
	h := newHarness(t, diamondPipeline, nil, nil)
	h.runner.fail["stage.caller"] = &executor.ExecutionError{
		Stage: "stage.caller", Kind: executor.KindExit, Excerpt: "segfault",
	}

	err := h.run(context.Background())
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	require.Len(t, runErr.Failures, 1)
	assert.Equal(t, "stage.caller", runErr.Failures[0].Stage)
	assert.Equal(t, "exit", runErr.Failures[0].Kind)
	assert.Equal(t, "segfault", runErr.Failures[0].Excerpt)

	s := h.lastScheduler
	assert.Equal(t, StateFailed, s.StateOf("stage.caller"))
	for _, id := range []string{"stage.signatures", "stage.burden", "stage.report"} {
		assert.Equal(t, StateSkipped, s.StateOf(id), id)
		cause := s.SkipCause(id)
		require.NotNil(t, cause, id)
		assert.Equal(t, "stage.caller", cause.Cause, id)
	}
	assert.Equal(t, []string{"stage.caller"}, h.runner.callOrder())
}

func TestRun_MidGraphFailureSparesIndependentBranch(t *testing.T) {
	h := newHarness(t, diamondPipeline, nil, nil)
	h.runner.fail["stage.signatures"] = &executor.ExecutionError{
		Stage: "stage.signatures", Kind: executor.KindExit,
	}

	err := h.run(context.Background())
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)

	s := h.lastScheduler
	assert.Equal(t, StateCompleted, s.StateOf("stage.caller"))
	assert.Equal(t, StateCompleted, s.StateOf("stage.burden"))
	assert.Equal(t, StateFailed, s.StateOf("stage.signatures"))
	assert.Equal(t, StateSkipped, s.StateOf("stage.report"))
	assert.Equal(t, "stage.signatures", s.SkipCause("stage.report").Cause)
}

func TestRun_ResumeDispatchesOnlyUncachedStages(t *testing.T) {
	h := newHarness(t, diamondPipeline, nil, func(rc *config.RunContext) {
		rc.Resume = true
	})
	h.markComplete(t, "stage.caller")
	h.markComplete(t, "stage.signatures")

	require.NoError(t, h.run(context.Background()))

	s := h.lastScheduler
	assert.Equal(t, StateCachedComplete, s.StateOf("stage.caller"))
	assert.Equal(t, StateCachedComplete, s.StateOf("stage.signatures"))
	assert.Equal(t, StateCompleted, s.StateOf("stage.burden"))
	assert.Equal(t, StateCompleted, s.StateOf("stage.report"))
	assert.Equal(t, []string{"stage.burden", "stage.report"}, h.runner.callOrder())
}

func TestRun_FullyCachedResumeInvokesNothing(t *testing.T) {
	h := newHarness(t, diamondPipeline, nil, func(rc *config.RunContext) {
		rc.Resume = true
	})
	require.NoError(t, h.run(context.Background()))
	require.Len(t, h.runner.callOrder(), 4)

	rerun := newFakeRunner(h.tracker)
	s := New(h.graph, rerun, h.tracker, h.bus, h.runCtx, "rerun")
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, rerun.callOrder())
	for _, id := range h.graph.TopoOrder() {
		assert.Equal(t, StateCachedComplete, s.StateOf(id), id)
	}
}

func TestRun_WithoutResumeMarkersAreIgnored(t *testing.T) {
	h := newHarness(t, diamondPipeline, nil, nil)
	h.markComplete(t, "stage.caller")

	require.NoError(t, h.run(context.Background()))
	assert.Len(t, h.runner.callOrder(), 4)
}

const wideStagesPipeline = `
stage "fit_a" {
  command = ["fit", artifact.a_out]
  output "a_out" { path = "a/out.txt" }
  resources {
    cpus = 6
  }
}

stage "fit_b" {
  command = ["fit", artifact.b_out]
  output "b_out" { path = "b/out.txt" }
  resources {
    cpus = 6
  }
}
`

func TestRun_CeilingSerializesWideStages(t *testing.T) {
	h := newHarness(t, wideStagesPipeline, nil, nil)
	h.runner.delay["stage.fit_a"] = 100 * time.Millisecond
	h.runner.delay["stage.fit_b"] = 100 * time.Millisecond

	require.NoError(t, h.run(context.Background()))

	assert.Equal(t, 1, h.runner.maxConcurrent)
	assert.LessOrEqual(t, h.runner.maxBusyCpus, 8)
	s := h.lastScheduler
	assert.Equal(t, StateCompleted, s.StateOf("stage.fit_a"))
	assert.Equal(t, StateCompleted, s.StateOf("stage.fit_b"))
}

func TestRun_StageExceedingCeilingAbortsBeforeExecution(t *testing.T) {
	h := newHarness(t, wideStagesPipeline, nil, func(rc *config.RunContext) {
		rc.Ceiling = config.ResourceSpec{Cpus: 4, MemoryMB: 16384}
	})

	err := h.run(context.Background())
	var resErr *ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "stage.fit_a", resErr.Stage)
	assert.Empty(t, h.runner.callOrder())
}

func TestRun_CancellationFailsRunningAndSkipsRest(t *testing.T) {
	h := newHarness(t, diamondPipeline, nil, nil)
	h.runner.delay["stage.caller"] = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := h.run(ctx)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	require.Len(t, runErr.Failures, 1)
	assert.Equal(t, "cancelled", runErr.Failures[0].Kind)

	s := h.lastScheduler
	assert.Equal(t, StateFailed, s.StateOf("stage.caller"))
	assert.Equal(t, StateSkipped, s.StateOf("stage.report"))
}

func TestRun_PublishesTransitionEvents(t *testing.T) {
	h := newHarness(t, `
stage "only" {
  command = ["run", artifact.out]
  output "out" { path = "out.txt" }
}
`, nil, nil)
	sub := h.bus.Subscribe(16)

	require.NoError(t, h.run(context.Background()))
	h.bus.Close()

	var transitions []string
	for ev := range sub {
		assert.Equal(t, "test-run", ev.RunID)
		assert.Equal(t, "stage.only", ev.Stage)
		transitions = append(transitions, ev.To)
	}
	assert.Equal(t, []string{"ready", "running", "completed"}, transitions)
}
