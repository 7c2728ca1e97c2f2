package app

import "errors"

// Config holds everything an App instance needs to run, as resolved from the
// command line.
type Config struct {
	PipelinePath string
	SamplesPath  string
	SamplesDir   string
	Workdir      string

	Resume     bool
	Runtime    string
	CeilingCpu int
	CeilingMem int
	Overrides  []string
	SkipStages []string

	LogFormat string
	LogLevel  string

	History      bool
	HistoryLimit int
}

// NewConfig validates a Config. History mode needs no pipeline; everything
// else does.
func NewConfig(cfg Config) (*Config, error) {
	if !cfg.History && cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Workdir == "" {
		return nil, errors.New("Workdir is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
