// Package app is the composition root: it wires the pipeline loader, sample
// discovery, graph builder, cache tracker, executor, scheduler and run
// journal into one run.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/ctxlog"
	"github.com/cwobiora/oncoflow/internal/samples"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *Config
	model  *config.Model
	pairs  []samples.Sample
	runCtx *config.RunContext
}

// NewApp is the constructor for the main application. It loads the pipeline
// declaration and the sample set and freezes the run context. Startup
// failures here are fatal; NewApp panics and the entrypoint recovers to
// present a clean message.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load pipeline declaration: %w", err))
	}
	logger.Debug("Pipeline declaration loaded.", "stages", len(model.Stages))

	pairs, err := loadSamples(ctx, appConfig)
	if err != nil {
		panic(fmt.Errorf("failed to resolve sample set: %w", err))
	}
	if len(pairs) > 0 {
		logger.Debug("Sample pairs resolved.", "count", len(pairs))
	}

	runCtx, err := buildRunContext(appConfig)
	if err != nil {
		panic(fmt.Errorf("invalid run configuration: %w", err))
	}

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    appConfig,
		model:  model,
		pairs:  pairs,
		runCtx: runCtx,
	}
}

func loadSamples(ctx context.Context, appConfig *Config) ([]samples.Sample, error) {
	switch {
	case appConfig.SamplesPath != "":
		return samples.LoadManifest(appConfig.SamplesPath)
	case appConfig.SamplesDir != "":
		return samples.Discover(ctx, appConfig.SamplesDir)
	default:
		return nil, nil
	}
}

// buildRunContext freezes the per-run settings. The run context is immutable
// for the run's duration.
func buildRunContext(appConfig *Config) (*config.RunContext, error) {
	workdir, err := filepath.Abs(appConfig.Workdir)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	runtime := config.RuntimeKind(appConfig.Runtime)
	switch runtime {
	case config.RuntimeDocker, config.RuntimeSingularity, config.RuntimeLocal:
	default:
		return nil, fmt.Errorf("unknown runtime %q: must be docker, singularity or local", appConfig.Runtime)
	}

	overrides := make(map[string]config.ResourceOverride)
	for _, raw := range appConfig.Overrides {
		if err := config.ParseOverride(overrides, raw); err != nil {
			return nil, err
		}
	}

	return &config.RunContext{
		Workdir: workdir,
		Resume:  appConfig.Resume,
		Runtime: runtime,
		Ceiling: config.ResourceSpec{
			Cpus:     appConfig.CeilingCpu,
			MemoryMB: appConfig.CeilingMem,
		},
		Overrides:  overrides,
		SkipStages: appConfig.SkipStages,
	}, nil
}
