package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/cwobiora/oncoflow/internal/journal"
)

// PrintHistory lists the most recent runs recorded in the working
// directory's journal, newest first.
func PrintHistory(ctx context.Context, outW io.Writer, cfg *Config) error {
	jnl, err := journal.Open(ctx, filepath.Join(cfg.Workdir, "journal.db"))
	if err != nil {
		return fmt.Errorf("opening run journal: %w", err)
	}
	defer jnl.Close()

	runs, err := jnl.History(ctx, cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(outW, "No recorded runs.")
		return nil
	}

	for _, r := range runs {
		finished := r.Finished
		if finished == "" {
			finished = "-"
		}
		fmt.Fprintf(outW, "%s  %-8s  started %s  finished %s  %s\n",
			r.ID, r.Verdict, r.StartedAt, finished, r.Pipeline)
	}
	return nil
}
