package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cwobiora/oncoflow/internal/cache"
	"github.com/cwobiora/oncoflow/internal/ctxlog"
	"github.com/cwobiora/oncoflow/internal/events"
	"github.com/cwobiora/oncoflow/internal/executor"
	"github.com/cwobiora/oncoflow/internal/graph"
	"github.com/cwobiora/oncoflow/internal/journal"
	"github.com/cwobiora/oncoflow/internal/scheduler"
)

// Run executes one pipeline run end to end and reports the verdict. The run
// journal records every stage transition; the returned error is nil only
// when every terminal stage finished.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	g, err := graph.Build(ctx, a.model, a.pairs, a.runCtx)
	if err != nil {
		return fmt.Errorf("failed to build stage graph: %w", err)
	}
	a.logger.Info("Stage graph built.", "node_count", len(g.Nodes))
	if len(g.Nodes) == 0 {
		a.logger.Warn("No stages to run.")
		return nil
	}

	runID := uuid.NewString()
	jnl, err := journal.Open(ctx, filepath.Join(a.runCtx.Workdir, "journal.db"))
	if err != nil {
		return fmt.Errorf("opening run journal: %w", err)
	}
	defer jnl.Close()
	if err := jnl.BeginRun(ctx, runID, a.cfg.PipelinePath); err != nil {
		return err
	}

	bus := events.NewBus()
	sub := bus.Subscribe(0)
	var eg errgroup.Group
	eg.Go(func() error {
		// Recording outlives ctx so that transitions emitted while an
		// aborted run drains still land in the journal.
		for ev := range sub {
			if err := jnl.RecordEvent(context.Background(), ev); err != nil {
				a.logger.Warn("Failed to record stage event.", "stage", ev.Stage, "error", err)
			}
		}
		return nil
	})

	tracker := cache.NewTracker(a.runCtx.Workdir)
	sched := scheduler.New(g, executor.New(a.runCtx, tracker), tracker, bus, a.runCtx, runID)

	a.logger.Info("Starting pipeline run.", "run_id", runID, "runtime", string(a.runCtx.Runtime), "resume", a.runCtx.Resume)
	runErr := sched.Run(ctx)
	bus.Close()
	_ = eg.Wait()

	verdict := "success"
	if runErr != nil {
		verdict = "failed"
	}
	if err := jnl.FinishRun(context.Background(), runID, verdict); err != nil {
		a.logger.Warn("Failed to finalize run journal.", "error", err)
	}

	if runErr != nil {
		a.reportFailures(runErr)
		return runErr
	}
	a.logger.Info("Pipeline run succeeded.", "run_id", runID)
	return nil
}

// reportFailures prints the structured failure list: root-cause stages only,
// never downstream symptoms.
func (a *App) reportFailures(err error) {
	var runErr *scheduler.RunError
	if !errors.As(err, &runErr) {
		return
	}
	fmt.Fprintln(a.outW, "Run failed. Originating failures:")
	for _, f := range runErr.Failures {
		fmt.Fprintf(a.outW, "  stage %s (%s)\n", f.Stage, f.Kind)
		if f.Excerpt != "" {
			for _, line := range strings.Split(strings.TrimSpace(f.Excerpt), "\n") {
				fmt.Fprintf(a.outW, "    | %s\n", line)
			}
		}
	}
}
