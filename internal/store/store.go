// Package store persists run results: the councillor records and per-item
// issues of each council's latest run, plus a log of every run.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/council-scraper/internal/model"
)

// Sink receives the result of one run. Saving replaces whatever was stored
// for the council before, so reporting the same outcome twice leaves the
// same state.
type Sink interface {
	SaveOutcome(ctx context.Context, council string, records []model.Councillor, issues []model.Issue) error
}

// RunLog records run summaries.
type RunLog interface {
	RecordRun(ctx context.Context, entry model.RunLogEntry) error
	// LastRuns returns the most recent entry per council, ordered by council.
	LastRuns(ctx context.Context) ([]model.RunLogEntry, error)
	// Failing returns the councils whose most recent run failed.
	Failing(ctx context.Context) ([]model.RunLogEntry, error)
	// RunsSince returns every entry finished at or after since, oldest first.
	RunsSince(ctx context.Context, since time.Time) ([]model.RunLogEntry, error)
}

// Store is a Sink and RunLog with a lifecycle.
type Store interface {
	Sink
	RunLog
	Councillors(ctx context.Context, council string) ([]model.Councillor, error)
	Issues(ctx context.Context, council string) ([]model.Issue, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	Driver      string
	DatabaseURL string
	OutputDir   string
	Pool        *PoolConfig
}

// Open creates the store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "sqlite":
		return NewSQLite(opts.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	case "file":
		return NewFileStore(opts.OutputDir)
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}

func failingOf(entries []model.RunLogEntry) []model.RunLogEntry {
	var out []model.RunLogEntry
	for _, e := range entries {
		if e.Status == model.RunStatusFailed {
			out = append(out, e)
		}
	}
	return out
}
