// Package cli turns command-line arguments into a validated app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/cwobiora/oncoflow/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("oncoflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
oncoflow - a resumable orchestrator for containerized cancer-genomics pipelines.

Usage:
  oncoflow [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a single .hcl pipeline file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline file or directory.")
	samplesFlag := flagSet.String("samples", "", "Path to a YAML sample-pair manifest.")
	samplesDirFlag := flagSet.String("samples-dir", "", "Directory scanned for <id>_Tumour / <id>_Normal sample pairs.")
	workdirFlag := flagSet.String("workdir", "work", "Run working directory: outputs, markers, logs, journal.")
	resumeFlag := flagSet.Bool("resume", false, "Reuse completed stages from a previous run in the same workdir.")
	runtimeFlag := flagSet.String("runtime", "docker", "Stage isolation runtime. Options: 'docker', 'singularity' or 'local'.")
	cpusFlag := flagSet.Int("cpus", runtime.NumCPU(), "Global cpu ceiling for concurrently running stages. 0 is unbounded.")
	memFlag := flagSet.Int("memory-mb", 0, "Global memory ceiling in MB for concurrently running stages. 0 is unbounded.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	historyFlag := flagSet.Bool("history", false, "Print recent runs from the workdir journal and exit.")
	historyLimitFlag := flagSet.Int("history-limit", 20, "Number of runs to list with -history.")

	var overrides stringList
	flagSet.Var(&overrides, "set", "Per-stage resource override, e.g. 'fit_model.cpus=8'. Repeatable.")
	var skips stringList
	flagSet.Var(&skips, "skip", "Stage name to exclude from this run. Repeatable.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *pipelineFlag
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" && !*historyFlag {
		slog.Debug("No pipeline path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *samplesFlag != "" && *samplesDirFlag != "" {
		return nil, false, &ExitError{Code: 2, Message: "use either -samples or -samples-dir, not both"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		PipelinePath: path,
		SamplesPath:  *samplesFlag,
		SamplesDir:   *samplesDirFlag,
		Workdir:      *workdirFlag,
		Resume:       *resumeFlag,
		Runtime:      strings.ToLower(*runtimeFlag),
		CeilingCpu:   *cpusFlag,
		CeilingMem:   *memFlag,
		Overrides:    overrides,
		SkipStages:   skips,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		History:      *historyFlag,
		HistoryLimit: *historyLimitFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return config, false, nil
}
